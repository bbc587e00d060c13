package email

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"io"
	"strconv"
	"strings"

	"github.com/minio/minio-go/v7"

	"civic-automation/internal/domain"
	"civic-automation/internal/pkg/i18n"
)

const (
	layoutTemplate = "layout.html"
	singleTemplate = "single.html"
	digestTemplate = "digest.html"
)

//go:embed templates/*.html
var embeddedTemplates embed.FS

// TemplateSource returns the raw contents of a named email template.
type TemplateSource interface {
	Load(ctx context.Context, name string) ([]byte, error)
}

type embeddedSource struct{}

func NewEmbeddedSource() TemplateSource {
	return embeddedSource{}
}

func (embeddedSource) Load(ctx context.Context, name string) ([]byte, error) {
	data, err := embeddedTemplates.ReadFile("templates/" + name)
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded template %s: %w", name, err)
	}
	return data, nil
}

type minioSource struct {
	client   *minio.Client
	bucket   string
	fallback TemplateSource
}

// NewMinIOSource reads overrides from the bucket and falls back to the
// embedded templates for objects that do not exist.
func NewMinIOSource(client *minio.Client, bucket string) TemplateSource {
	return &minioSource{client: client, bucket: bucket, fallback: NewEmbeddedSource()}
}

func (s *minioSource) Load(ctx context.Context, name string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get template %s: %w", name, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if minio.ToErrorResponse(err).Code == minio.NoSuchKey {
			return s.fallback.Load(ctx, name)
		}
		return nil, fmt.Errorf("failed to read template %s: %w", name, err)
	}
	return data, nil
}

// Rendered is a ready to send email.
type Rendered struct {
	Subject string
	HTML    string
}

type Renderer struct {
	source           TemplateSource
	appURL           string
	organizationName string
}

func NewRenderer(source TemplateSource, appURL, organizationName string) *Renderer {
	return &Renderer{
		source:           source,
		appURL:           strings.TrimRight(appURL, "/"),
		organizationName: organizationName,
	}
}

type pageData struct {
	Subject          string
	Greeting         string
	Intro            string
	Footer           string
	ActionLabel      string
	AppURL           string
	OrganizationName string
	Items            []itemData
}

type itemData struct {
	Title     string
	Message   string
	ActionURL string
}

func (r *Renderer) RenderSingle(ctx context.Context, recipient domain.Recipient, notif domain.Notification) (*Rendered, error) {
	locale := localeOf(recipient)
	item := r.item(locale, notif)

	page := r.page(locale, recipient)
	page.Subject = i18n.T(locale, "email.single.subject", map[string]string{"title": item.Title})
	page.Items = []itemData{item}

	return r.render(ctx, singleTemplate, page)
}

func (r *Renderer) RenderDigest(ctx context.Context, recipient domain.Recipient, notifs []domain.Notification) (*Rendered, error) {
	locale := localeOf(recipient)

	page := r.page(locale, recipient)
	page.Subject = i18n.T(locale, "email.digest.subject", map[string]string{"count": strconv.Itoa(len(notifs))})
	page.Intro = i18n.Translate(locale, "email.digest.intro")
	for _, n := range notifs {
		page.Items = append(page.Items, r.item(locale, n))
	}

	return r.render(ctx, digestTemplate, page)
}

func (r *Renderer) page(locale string, recipient domain.Recipient) pageData {
	return pageData{
		Greeting:         i18n.T(locale, "email.greeting", map[string]string{"username": recipient.Username}),
		Footer:           i18n.T(locale, "email.footer", map[string]string{"organizationName": r.organizationName}),
		ActionLabel:      i18n.Translate(locale, "email.action"),
		AppURL:           r.appURL,
		OrganizationName: r.organizationName,
	}
}

func (r *Renderer) item(locale string, notif domain.Notification) itemData {
	item := itemData{
		Title:   i18n.T(locale, notif.TitleKey, notif.InterpolationData),
		Message: i18n.T(locale, notif.BodyKey, notif.InterpolationData),
	}
	if notif.ActionURL != nil && *notif.ActionURL != "" {
		item.ActionURL = r.absoluteURL(*notif.ActionURL)
	}
	return item
}

func (r *Renderer) absoluteURL(u string) string {
	if strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://") {
		return u
	}
	return r.appURL + "/" + strings.TrimLeft(u, "/")
}

func (r *Renderer) render(ctx context.Context, name string, page pageData) (*Rendered, error) {
	layout, err := r.source.Load(ctx, layoutTemplate)
	if err != nil {
		return nil, err
	}
	content, err := r.source.Load(ctx, name)
	if err != nil {
		return nil, err
	}

	tmpl, err := template.New(layoutTemplate).Parse(string(layout))
	if err != nil {
		return nil, fmt.Errorf("failed to parse email layout: %w", err)
	}
	if _, err := tmpl.Parse(string(content)); err != nil {
		return nil, fmt.Errorf("failed to parse email template %s: %w", name, err)
	}

	var body bytes.Buffer
	if err := tmpl.Execute(&body, page); err != nil {
		return nil, fmt.Errorf("failed to execute email template: %w", err)
	}

	return &Rendered{Subject: page.Subject, HTML: body.String()}, nil
}

func localeOf(recipient domain.Recipient) string {
	if recipient.Locale == "" {
		return i18n.DefaultLocale
	}
	return recipient.Locale
}
