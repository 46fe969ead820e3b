package campaign

import (
	"bytes"
	htmltmpl "html/template"
	"strings"
	texttmpl "text/template"

	"github.com/pkg/errors"

	"github.com/onlineimmigrant/move-plan-next-sub025/core"
)

type compiled struct {
	subject *texttmpl.Template
	text    *texttmpl.Template
	html    *htmltmpl.Template
}

// compile parses the parts of t, reporting each broken one as a field error.
func compile(t Template) (*compiled, error) {
	var (
		c       compiled
		err     error
		fldErrs []core.FieldError
	)
	if c.subject, err = texttmpl.New("subject").Parse(t.Subject); err != nil {
		fldErrs = append(fldErrs, core.FieldError{Field: "subject", Error: err.Error()})
	}
	if c.text, err = texttmpl.New("text").Parse(t.TextBody); err != nil {
		fldErrs = append(fldErrs, core.FieldError{Field: "text_body", Error: err.Error()})
	}
	if c.html, err = htmltmpl.New("html").Parse(t.HTMLBody); err != nil {
		fldErrs = append(fldErrs, core.FieldError{Field: "html_body", Error: err.Error()})
	}
	if fldErrs != nil {
		return nil, core.NewValidationError(nil, fldErrs...)
	}
	return &c, nil
}

func (c *compiled) render(data map[string]interface{}) (Rendered, error) {
	var r Rendered
	var buf bytes.Buffer

	if err := c.subject.Execute(&buf, data); err != nil {
		return r, errors.Wrap(err, "rendering subject")
	}
	r.Subject = strings.TrimSpace(strings.ReplaceAll(buf.String(), "\n", " "))

	buf.Reset()
	if err := c.text.Execute(&buf, data); err != nil {
		return r, errors.Wrap(err, "rendering text body")
	}
	r.Text = buf.String()

	buf.Reset()
	if err := c.html.Execute(&buf, data); err != nil {
		return r, errors.Wrap(err, "rendering html body")
	}
	r.HTML = buf.String()
	return r, nil
}

// Render renders t with data. Subject and text are text templates, the HTML body is an html template.
func Render(t Template, data map[string]interface{}) (Rendered, error) {
	c, err := compile(t)
	if err != nil {
		return Rendered{}, err
	}
	r, err := c.render(data)
	if err != nil {
		return Rendered{}, core.NewValidationError(err)
	}
	return r, nil
}

// recipientData merges the recipient data over its Name and Email.
func recipientData(r Recipient) map[string]interface{} {
	data := map[string]interface{}{"Name": r.Name, "Email": r.Email}
	for k, v := range r.Data {
		data[k] = v
	}
	return data
}
