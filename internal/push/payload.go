package push

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

const (
	// DefaultTitle is shown when a payload carries no notification title.
	DefaultTitle = "New Message"
	// DefaultBody is shown when a payload carries no notification body.
	DefaultBody = "You have a new message."
)

// Notification is the optional presentation block of a push payload.
type Notification struct {
	Title string `json:"title,omitempty"`
	Body  string `json:"body,omitempty"`
	Image string `json:"image,omitempty"`
}

// Payload is the push provider wire contract received on both delivery paths.
// Data is opaque application metadata and is carried through unmodified.
type Payload struct {
	Notification *Notification    `json:"notification,omitempty"`
	Data         map[string]string `json:"data"`
	MessageID    string            `json:"messageId,omitempty"`
	From         string            `json:"from,omitempty"`
	CollapseKey  string            `json:"collapseKey,omitempty"`
}

// Display is a payload resolved against the presentation defaults.
type Display struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Icon  string            `json:"icon,omitempty"`
	Tag   string            `json:"tag,omitempty"`
	Data  map[string]string `json:"data"`
}

// Display applies the defaulting rules shared by the background and
// foreground paths. An empty defaultIcon means no icon.
func (p Payload) Display(defaultIcon string) Display {
	d := Display{
		Title: DefaultTitle,
		Body:  DefaultBody,
		Icon:  defaultIcon,
		Tag:   p.MessageID,
		Data:  p.Data,
	}
	if d.Data == nil {
		d.Data = map[string]string{}
	}
	if n := p.Notification; n != nil {
		if n.Title != "" {
			d.Title = n.Title
		}
		if n.Body != "" {
			d.Body = n.Body
		}
		if n.Image != "" {
			d.Icon = n.Image
		}
	}
	return d
}

// Decode validates raw against the payload schema and returns a normalized
// payload. The returned payload is always usable: Data is never nil. When the
// input violates the contract, the error wraps ErrMalformedPayload and the
// payload holds whatever could be salvaged.
func Decode(raw []byte) (Payload, error) {
	if err := validatePayload(raw); err != nil {
		p := salvage(raw)
		return p, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return salvage(raw), fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if p.Data == nil {
		p.Data = map[string]string{}
	}
	return p, nil
}

// IsMalformed reports whether err came from normalizing a bad payload.
func IsMalformed(err error) bool {
	return errors.Is(err, ErrMalformedPayload)
}

// salvage extracts the usable parts of a document that failed validation.
// Non-string data values are stringified; non-string notification fields are dropped.
func salvage(raw []byte) Payload {
	p := Payload{Data: map[string]string{}}

	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return p
	}

	if n, ok := doc["notification"].(map[string]any); ok {
		notification := &Notification{}
		notification.Title, _ = n["title"].(string)
		notification.Body, _ = n["body"].(string)
		notification.Image, _ = n["image"].(string)
		p.Notification = notification
	}

	if data, ok := doc["data"].(map[string]any); ok {
		for k, v := range data {
			switch val := v.(type) {
			case string:
				p.Data[k] = val
			case float64:
				p.Data[k] = strconv.FormatFloat(val, 'f', -1, 64)
			case bool:
				p.Data[k] = strconv.FormatBool(val)
			}
		}
	}

	p.MessageID, _ = doc["messageId"].(string)
	p.From, _ = doc["from"].(string)
	p.CollapseKey, _ = doc["collapseKey"].(string)
	return p
}
