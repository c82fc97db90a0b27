package notifications

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"strings"
)

// DispatcherLogger defines the logging contract for dispatch operations.
type DispatcherLogger func(ctx context.Context, event string, fields map[string]any)

// DispatcherConfig configures the Dispatcher.
type DispatcherConfig struct {
	Mailer      Mailer
	FromAddress string
	FromName    string
	ReplyTo     string
	AdminEmail  string
	Logger      DispatcherLogger
}

// Dispatcher renders and sends the templated customer and operator emails.
// Delivery is best effort: callers must never roll back state when a send
// fails.
type Dispatcher struct {
	mailer     Mailer
	from       string
	replyTo    string
	adminEmail string
	logger     DispatcherLogger
}

// NewDispatcher constructs a Dispatcher from its configuration.
func NewDispatcher(cfg DispatcherConfig) (*Dispatcher, error) {
	if cfg.Mailer == nil {
		return nil, errors.New("notifications: mailer is required")
	}
	if strings.TrimSpace(cfg.FromAddress) == "" {
		return nil, errors.New("notifications: from address is required")
	}

	from := strings.TrimSpace(cfg.FromAddress)
	if name := strings.TrimSpace(cfg.FromName); name != "" {
		from = fmt.Sprintf("%s <%s>", name, from)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &Dispatcher{
		mailer:     cfg.Mailer,
		from:       from,
		replyTo:    strings.TrimSpace(cfg.ReplyTo),
		adminEmail: strings.TrimSpace(cfg.AdminEmail),
		logger:     logger,
	}, nil
}

// CreatingData feeds the "masterpiece being created" email sent right after
// photo submission.
type CreatingData struct {
	CustomerName  string
	CustomerEmail string
	PetName       string
	ArtworkURL    string
}

// CompletedData feeds the completion email once the artwork is viewable.
type CompletedData struct {
	CustomerName  string
	CustomerEmail string
	PetName       string
	ArtworkURL    string
	ImageURL      string
}

// OrderConfirmationData feeds the payment confirmation email.
type OrderConfirmationData struct {
	CustomerName  string
	CustomerEmail string
	OrderNumber   string
	ProductType   string
	ProductSize   string
	AmountCents   int64
	Currency      string
}

// Amount formats the charged amount in major currency units.
func (d OrderConfirmationData) Amount() string {
	return fmt.Sprintf("%.2f %s", float64(d.AmountCents)/100, strings.ToUpper(d.Currency))
}

// ShippedData feeds the shipping notification email.
type ShippedData struct {
	CustomerName   string
	CustomerEmail  string
	OrderNumber    string
	TrackingNumber string
	TrackingURL    string
}

// AdminReviewData feeds the operator alert raised when a review opens.
type AdminReviewData struct {
	ReviewID        string
	ReviewType      string
	CustomerName    string
	CustomerEmail   string
	PetName         string
	ImageURL        string
	EditRequestText string
}

// MasterpieceCreating tells the customer their photos were received and the
// portrait is being painted.
func (d *Dispatcher) MasterpieceCreating(ctx context.Context, data CreatingData) error {
	html, err := render(creatingTemplate, data)
	if err != nil {
		return err
	}
	return d.send(ctx, "notifications.creating", data.CustomerEmail, "Your masterpiece is being created!", html)
}

// ArtworkCompleted tells the customer their portrait is ready to view.
func (d *Dispatcher) ArtworkCompleted(ctx context.Context, data CompletedData) error {
	html, err := render(completedTemplate, data)
	if err != nil {
		return err
	}
	return d.send(ctx, "notifications.completed", data.CustomerEmail, "Your masterpiece is ready!", html)
}

// OrderConfirmation acknowledges a paid order.
func (d *Dispatcher) OrderConfirmation(ctx context.Context, data OrderConfirmationData) error {
	html, err := render(orderConfirmationTemplate, data)
	if err != nil {
		return err
	}
	return d.send(ctx, "notifications.order_confirmation", data.CustomerEmail, "Order confirmed: your Pawtrait masterpiece", html)
}

// OrderShipped sends tracking details once the fulfillment vendor dispatches.
func (d *Dispatcher) OrderShipped(ctx context.Context, data ShippedData) error {
	html, err := render(shippedTemplate, data)
	if err != nil {
		return err
	}
	subject := fmt.Sprintf("Your order %s has shipped!", data.OrderNumber)
	return d.send(ctx, "notifications.shipped", data.CustomerEmail, subject, html)
}

// AdminReviewAlert notifies the operator that a review is waiting.
func (d *Dispatcher) AdminReviewAlert(ctx context.Context, data AdminReviewData) error {
	if d.adminEmail == "" {
		return errors.New("notifications: admin email is not configured")
	}
	html, err := render(adminReviewTemplate, data)
	if err != nil {
		return err
	}
	subject := fmt.Sprintf("[ADMIN] %s review required", reviewTypeLabel(data.ReviewType))
	return d.send(ctx, "notifications.admin_review", d.adminEmail, subject, html)
}

func (d *Dispatcher) send(ctx context.Context, event, to, subject, html string) error {
	if d == nil || d.mailer == nil {
		return ErrNotConfigured
	}
	if strings.TrimSpace(to) == "" {
		return errors.New("notifications: recipient is required")
	}

	messageID, err := d.mailer.Send(ctx, Message{
		From:    d.from,
		ReplyTo: d.replyTo,
		To:      to,
		Subject: subject,
		HTML:    html,
	})
	if err != nil {
		d.logger(ctx, event+".failed", map[string]any{"recipient": to, "error": err.Error()})
		return err
	}
	d.logger(ctx, event+".sent", map[string]any{"recipient": to, "messageId": messageID})
	return nil
}

func reviewTypeLabel(reviewType string) string {
	switch reviewType {
	case "artwork_proof":
		return "Artwork proof"
	case "highres_file":
		return "High-res file"
	case "edit_request":
		return "Edit request"
	default:
		return "Artwork"
	}
}

func render(tmpl *template.Template, data any) (string, error) {
	var buf strings.Builder
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("notifications: render %s: %w", tmpl.Name(), err)
	}
	return buf.String(), nil
}

var creatingTemplate = template.Must(template.New("creating").Parse(`<html><body>
<h1>Your masterpiece is being created{{if .PetName}} for {{.PetName}}{{end}}!</h1>
<p>{{if .CustomerName}}Hi {{.CustomerName}},{{else}}Hi,{{end}}</p>
<p>We received your photos and our studio is now painting your one-of-a-kind
Mona Lisa style portrait. You will get another email the moment it is ready.</p>
<p><a href="{{.ArtworkURL}}">Follow your artwork here</a></p>
</body></html>`))

var completedTemplate = template.Must(template.New("completed").Parse(`<html><body>
<h1>Your masterpiece is ready{{if .PetName}}, starring {{.PetName}}{{end}}!</h1>
<p>{{if .CustomerName}}Hi {{.CustomerName}},{{else}}Hi,{{end}}</p>
<p>Your portrait is finished and waiting for you.</p>
<p><a href="{{.ArtworkURL}}"><img src="{{.ImageURL}}" alt="Your finished portrait" width="400"/></a></p>
<p><a href="{{.ArtworkURL}}">View your masterpiece</a></p>
</body></html>`))

var orderConfirmationTemplate = template.Must(template.New("order_confirmation").Parse(`<html><body>
<h1>Order {{.OrderNumber}} confirmed</h1>
<p>{{if .CustomerName}}Hi {{.CustomerName}},{{else}}Hi,{{end}}</p>
<p>Thank you for your order. We are preparing your {{.ProductType}}{{if .ProductSize}} ({{.ProductSize}}){{end}} now.</p>
<p>Amount charged: {{.Amount}}</p>
</body></html>`))

var shippedTemplate = template.Must(template.New("shipped").Parse(`<html><body>
<h1>Order {{.OrderNumber}} is on its way!</h1>
<p>{{if .CustomerName}}Hi {{.CustomerName}},{{else}}Hi,{{end}}</p>
<p>Your portrait has shipped.{{if .TrackingNumber}} Tracking number: {{.TrackingNumber}}.{{end}}</p>
{{if .TrackingURL}}<p><a href="{{.TrackingURL}}">Track your package</a></p>{{end}}
</body></html>`))

var adminReviewTemplate = template.Must(template.New("admin_review").Parse(`<html><body>
<h1>Review required: {{.ReviewType}}</h1>
<p>Review {{.ReviewID}} is waiting for a decision.</p>
<p>Customer: {{.CustomerName}} ({{.CustomerEmail}}){{if .PetName}}, pet: {{.PetName}}{{end}}</p>
{{if .EditRequestText}}<p>Requested edit: {{.EditRequestText}}</p>{{end}}
{{if .ImageURL}}<p><img src="{{.ImageURL}}" alt="Artwork under review" width="400"/></p>{{end}}
</body></html>`))
