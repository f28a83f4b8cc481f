package server

import (
	"bytes"
	"embed"
	"html/template"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/payrecon/internal/config"
	paymentdomain "github.com/smallbiznis/payrecon/internal/payment/domain"
	"go.uber.org/zap"
)

const (
	maxWebhookBody = 1 << 20

	paymentMessageType = "paymob-payment"
)

//go:embed templates/payment_result.html
var templateFS embed.FS

var paymentResultTemplate = template.Must(template.ParseFS(templateFS, "templates/payment_result.html"))

type webhookAck struct {
	Success       bool   `json:"success"`
	ParentOrderID string `json:"parentOrderId"`
	PaymentStatus string `json:"paymentStatus"`
}

type paymentMessage struct {
	Type          string `json:"type"`
	Success       bool   `json:"success"`
	OrderID       string `json:"orderId"`
	PaymentStatus string `json:"paymentStatus"`
}

type paymentResultPage struct {
	Success     bool
	Message     paymentMessage
	RedirectURL string
	DelayMillis int64
}

// HandlePaymentWebhook accepts both the gateway's server callback (POST) and
// the customer's browser redirect (GET) for a provider.
func (s *Server) HandlePaymentWebhook(c *gin.Context) {
	delivery := paymentdomain.Delivery{
		Query:   c.Request.URL.Query(),
		Headers: c.Request.Header,
	}

	if c.Request.Method == http.MethodGet {
		delivery.Transport = paymentdomain.TransportRedirect
	} else {
		body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
		if err != nil {
			AbortWithError(c, paymentdomain.ErrMalformedPayload)
			return
		}
		delivery.Transport = paymentdomain.TransportCallback
		delivery.Body = body
	}

	outcome, err := s.paymentSvc.IngestWebhook(c.Request.Context(), c.Param("provider"), delivery)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.Set(contextOrderIDKey, outcome.OrderID)

	if delivery.Transport == paymentdomain.TransportRedirect {
		s.respondToBrowser(c, outcome)
		return
	}

	c.JSON(http.StatusOK, webhookAck{
		Success:       outcome.Success,
		ParentOrderID: outcome.OrderID,
		PaymentStatus: outcome.PaymentStatus,
	})
}

func (s *Server) respondToBrowser(c *gin.Context, outcome *paymentdomain.Outcome) {
	cfg := s.responseCfg.Get()
	target, err := resultURL(cfg.WebAppURL, outcome)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if cfg.Mode == config.ResponseModeRedirect {
		c.Redirect(http.StatusFound, target)
		return
	}

	page := paymentResultPage{
		Success: outcome.Success,
		Message: paymentMessage{
			Type:          paymentMessageType,
			Success:       outcome.Success,
			OrderID:       outcome.OrderID,
			PaymentStatus: outcome.PaymentStatus,
		},
		RedirectURL: target,
		DelayMillis: cfg.HTMLDelay.Milliseconds(),
	}

	var buf bytes.Buffer
	if err := paymentResultTemplate.Execute(&buf, page); err != nil {
		s.log.Error("render payment result page", zap.Error(err))
		AbortWithError(c, err)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
}

// resultURL appends payment and order_id to the web app URL, keeping any
// query parameters it already carries.
func resultURL(base string, outcome *paymentdomain.Outcome) (string, error) {
	u, err := url.Parse(strings.TrimSpace(base))
	if err != nil {
		return "", err
	}
	payment := "failed"
	if outcome.Success {
		payment = "success"
	}
	q := u.Query()
	q.Set("payment", payment)
	q.Set("order_id", outcome.OrderID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
