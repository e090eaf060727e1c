package mail

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
)

var (
	codeTemplate = template.Must(template.New("code").Parse(`<p>Bonjour,</p>
<p>Votre code de vérification pour la demande <strong>{{.Reference}}</strong> est&nbsp;:</p>
<p style="font-size:28px;letter-spacing:6px;font-weight:bold">{{.Code}}</p>
<p>Ce code est valable {{.Minutes}} minutes.</p>
<p>Si vous n'êtes pas à l'origine de cette demande, ignorez ce message.</p>`))

	contactTemplate = template.Must(template.New("contact").Parse(`<h2>Nouveau message de contact</h2>
<p><strong>Nom&nbsp;:</strong> {{.FirstName}} {{.LastName}}</p>
<p><strong>Email&nbsp;:</strong> {{.Email}}</p>
{{if .Phone}}<p><strong>Téléphone&nbsp;:</strong> {{.Phone}}</p>{{end}}
{{if .Canton}}<p><strong>Canton&nbsp;:</strong> {{.Canton}}</p>{{end}}
{{if .Service}}<p><strong>Service&nbsp;:</strong> {{.Service}}</p>{{end}}
<p><strong>Message&nbsp;:</strong></p>
<p style="white-space:pre-wrap">{{.Message}}</p>`))

	confirmationTemplate = template.Must(template.New("confirmation").Parse(`<p>Bonjour {{.Name}},</p>
<p>Nous avons bien reçu votre demande «&nbsp;{{.Subject}}&nbsp;».</p>
<p>Votre numéro de référence&nbsp;: <strong>{{.Reference}}</strong></p>
{{if .TrackingURL}}<p>Vous pouvez suivre son avancement ici&nbsp;: <a href="{{.TrackingURL}}">{{.TrackingURL}}</a></p>{{end}}
<p>Meilleures salutations,<br>NF Fiduciaire</p>`))
)

// CodeEmail формирует письмо с кодом подтверждения.
func CodeEmail(to, reference, code string, minutes int) (Message, error) {
	var buf bytes.Buffer
	data := struct {
		Reference string
		Code      string
		Minutes   int
	}{reference, code, minutes}
	if err := codeTemplate.Execute(&buf, data); err != nil {
		return Message{}, fmt.Errorf("render code email: %w", err)
	}

	return Message{
		To:      []string{to},
		Subject: "Votre code de vérification " + reference,
		HTML:    buf.String(),
		Text:    fmt.Sprintf("Votre code de vérification pour la demande %s est : %s (valable %d minutes).", reference, code, minutes),
	}, nil
}

// ContactForm - содержимое формы обратной связи.
type ContactForm struct {
	FirstName string
	LastName  string
	Email     string
	Phone     string
	Canton    string
	Service   string
	Message   string
}

// ContactEmail формирует уведомление для офиса о сообщении из формы обратной связи.
func ContactEmail(to string, f ContactForm) (Message, error) {
	var buf bytes.Buffer
	if err := contactTemplate.Execute(&buf, f); err != nil {
		return Message{}, fmt.Errorf("render contact email: %w", err)
	}

	return Message{
		To:      []string{to},
		ReplyTo: f.Email,
		Subject: strings.TrimSpace("Contact : " + f.FirstName + " " + f.LastName),
		HTML:    buf.String(),
		Text:    fmt.Sprintf("%s %s <%s>\n\n%s", f.FirstName, f.LastName, f.Email, f.Message),
	}, nil
}

// ConfirmationEmail формирует подтверждение приёма заявки для клиента.
func ConfirmationEmail(to, name, subject, reference, trackingURL string) (Message, error) {
	var buf bytes.Buffer
	data := struct {
		Name        string
		Subject     string
		Reference   string
		TrackingURL string
	}{name, subject, reference, trackingURL}
	if err := confirmationTemplate.Execute(&buf, data); err != nil {
		return Message{}, fmt.Errorf("render confirmation email: %w", err)
	}

	return Message{
		To:      []string{to},
		Subject: "Confirmation de votre demande " + reference,
		HTML:    buf.String(),
		Text:    fmt.Sprintf("Nous avons bien reçu votre demande. Référence : %s", reference),
	}, nil
}
