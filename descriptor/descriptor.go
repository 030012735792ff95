// Package descriptor builds the integration document the notification platform
// reads to learn how to drive the service.
package descriptor

import (
	"encoding/json"

	"github.com/bassamadnan/mailreminder/config"
	"github.com/gravitational/trace"
)

const (
	VariantInterval = "interval"
	VariantFull     = "full"

	// TickPath is the route the platform calls on every interval.
	TickPath = "/api/tick"

	defaultAppName         = "Gmail Unreplied Email Notifier"
	defaultAppDescription  = "Notifies about unreplied Gmail emails"
	defaultAppLogo         = "https://i.imgur.com/lZqvffp.png"
	defaultBackgroundColor = "#fff"
	defaultInterval        = "*/15 * * * *"
	defaultCategory        = "Email & Messaging"
)

// Document is the top-level descriptor.
type Document struct {
	Data Data `json:"data"`
}

type Data struct {
	Date                *Dates       `json:"date,omitempty"`
	Descriptions        Descriptions `json:"descriptions"`
	IsActive            *bool        `json:"is_active,omitempty"`
	IntegrationType     string       `json:"integration_type"`
	IntegrationCategory string       `json:"integration_category,omitempty"`
	KeyFeatures         []string     `json:"key_features,omitempty"`
	Author              string       `json:"author,omitempty"`
	Website             string       `json:"website,omitempty"`
	Settings            []Setting    `json:"settings"`
	TargetURL           *string      `json:"target_url,omitempty"`
	TickURL             string       `json:"tick_url"`
}

type Dates struct {
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

type Descriptions struct {
	AppName         string `json:"app_name"`
	AppDescription  string `json:"app_description"`
	AppURL          string `json:"app_url"`
	AppLogo         string `json:"app_logo"`
	BackgroundColor string `json:"background_color"`
}

// Setting is one user-editable value shown by the platform.
type Setting struct {
	Label    string `json:"label"`
	Type     string `json:"type"`
	Required bool   `json:"required"`
	Default  string `json:"default"`
}

// Build returns the descriptor for the configured variant.
func Build(conf config.DescriptorConfig) (Document, error) {
	d := Data{
		Descriptions: Descriptions{
			AppName:         orDefault(conf.AppName, defaultAppName),
			AppDescription:  orDefault(conf.AppDescription, defaultAppDescription),
			AppURL:          conf.AppURL,
			AppLogo:         orDefault(conf.AppLogo, defaultAppLogo),
			BackgroundColor: orDefault(conf.BackgroundColor, defaultBackgroundColor),
		},
		IntegrationType: "interval",
		Settings:        []Setting{},
		TickURL:         conf.AppURL + TickPath,
	}

	switch conf.Variant {
	case VariantInterval, "":
	case VariantFull:
		active := true
		empty := ""
		d.Date = &Dates{CreatedAt: "2025-02-20", UpdatedAt: "2025-02-20"}
		d.IsActive = &active
		d.IntegrationCategory = defaultCategory
		d.KeyFeatures = []string{
			"Polls Gmail for unread messages older than a day",
			"Skips chats, self-sent mail and labeled threads",
			"Posts a summary with the subject of every unreplied email",
		}
		d.Author = conf.Author
		d.Website = conf.AppURL
		d.Settings = []Setting{{
			Label:    "interval",
			Type:     "text",
			Required: true,
			Default:  orDefault(conf.Interval, defaultInterval),
		}}
		d.TargetURL = &empty
	default:
		return Document{}, trace.BadParameter("unknown descriptor variant %q", conf.Variant)
	}
	return Document{Data: d}, nil
}

// Marshal builds the descriptor and renders it once, so every response carries the same bytes.
func Marshal(conf config.DescriptorConfig) ([]byte, error) {
	doc, err := Build(conf)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	b, err := json.MarshalIndent(doc, "", "  ")
	return b, trace.Wrap(err)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
