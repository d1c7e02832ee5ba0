package mail

import (
	"bytes"
	"fmt"
	"html/template"
)

// VerificationEmailData holds data for verification email templates.
type VerificationEmailData struct {
	SiteName  string
	Address   string
	Link      string
	ExpiresIn string // e.g. "24 hours"
}

var verificationHTML = template.Must(template.New("verification").Parse(verificationHTMLTemplate))

// BuildVerificationEmail creates a verification email with both HTML and text bodies.
func BuildVerificationEmail(data VerificationEmailData) Email {
	return Email{
		To:       data.Address,
		Subject:  fmt.Sprintf("Verify your %s email address", data.SiteName),
		TextBody: buildVerificationText(data),
		HTMLBody: buildVerificationHTML(data),
	}
}

func buildVerificationText(data VerificationEmailData) string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "Please confirm that %s is your email address for %s.\n\n", data.Address, data.SiteName)
	buf.WriteString("Open this link to verify it:\n")
	buf.WriteString(data.Link + "\n\n")
	fmt.Fprintf(&buf, "This link expires in %s.\n\n", data.ExpiresIn)
	buf.WriteString("If you did not add this address, you can safely ignore this email.\n")
	return buf.String()
}

func buildVerificationHTML(data VerificationEmailData) string {
	var buf bytes.Buffer
	_ = verificationHTML.Execute(&buf, data)
	return buf.String()
}

const verificationHTMLTemplate = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <title>Verify your email</title>
</head>
<body style="margin: 0; padding: 0; font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Arial, sans-serif; background-color: #f3f4f6;">
  <table role="presentation" width="100%" cellspacing="0" cellpadding="0" style="background-color: #f3f4f6;">
    <tr>
      <td align="center" style="padding: 40px 20px;">
        <table role="presentation" width="100%" cellspacing="0" cellpadding="0" style="max-width: 480px; background-color: #ffffff; border-radius: 8px;">
          <tr>
            <td style="padding: 32px 32px 24px; text-align: center; border-bottom: 1px solid #e5e7eb;">
              <h1 style="margin: 0; font-size: 24px; font-weight: 600; color: #0f766e;">{{.SiteName}}</h1>
            </td>
          </tr>
          <tr>
            <td style="padding: 32px;">
              <p style="margin: 0 0 24px; font-size: 16px; color: #374151; line-height: 1.5;">
                Please confirm that <strong>{{.Address}}</strong> is your email address.
              </p>
              <table role="presentation" width="100%" cellspacing="0" cellpadding="0">
                <tr>
                  <td align="center">
                    <a href="{{.Link}}" style="display: inline-block; padding: 14px 32px; background-color: #0f766e; color: #ffffff; text-decoration: none; font-size: 16px; border-radius: 6px;">
                      Verify email
                    </a>
                  </td>
                </tr>
              </table>
              <p style="margin: 24px 0 0; font-size: 13px; color: #9ca3af; text-align: center;">
                This link expires in {{.ExpiresIn}}.
              </p>
            </td>
          </tr>
          <tr>
            <td style="padding: 24px 32px; background-color: #f9fafb; border-top: 1px solid #e5e7eb;">
              <p style="margin: 0; font-size: 12px; color: #9ca3af; text-align: center;">
                If you did not add this address, you can safely ignore this email.
              </p>
            </td>
          </tr>
        </table>
      </td>
    </tr>
  </table>
</body>
</html>`
