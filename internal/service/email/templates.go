// internal/service/email/templates.go
package email

import (
	"fmt"
	"html"
	"strings"

	"towbook-service/internal/domain/booking"
)

// BookingConfirmed renders the receipt sent after a booking is recorded.
func BookingConfirmed(n booking.Notification, currency string) (subject, body string) {
	subject = "Your tow is booked"
	if n.ServiceNumber != "" {
		subject = fmt.Sprintf("Your tow is booked (%s)", n.ServiceNumber)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "<p>Hi %s,</p>", html.EscapeString(firstName(n.Recipient.Name)))
	b.WriteString("<p>Your payment went through and a tow truck has been booked.</p>")
	b.WriteString(`<table class="summary">`)
	row(&b, "Service number", n.ServiceNumber)
	row(&b, "Truck class", string(n.TruckClass))
	row(&b, "Total charged", fmt.Sprintf("%s %s", strings.ToUpper(currency), n.Amount))
	b.WriteString("</table>")
	b.WriteString("<p>We will contact you on the number you gave us when the driver is on the way.</p>")
	return subject, b.String()
}

// PaymentFailed tells the customer the charge did not go through.
func PaymentFailed(n booking.Notification) (subject, body string) {
	var b strings.Builder
	fmt.Fprintf(&b, "<p>Hi %s,</p>", html.EscapeString(firstName(n.Recipient.Name)))
	b.WriteString("<p>We could not take payment for your tow booking, so nothing has been booked yet.</p>")
	if n.Message != "" {
		fmt.Fprintf(&b, "<p>%s</p>", html.EscapeString(n.Message))
	}
	b.WriteString("<p>You can try again with the same or a different card.</p>")
	return "We could not process your payment", b.String()
}

func row(b *strings.Builder, label, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(b, "<tr><td>%s</td><td><strong>%s</strong></td></tr>", label, html.EscapeString(value))
}

func firstName(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return "there"
	}
	return fields[0]
}
