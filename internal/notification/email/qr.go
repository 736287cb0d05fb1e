package email

import (
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

// qrSizePx is the edge length of the generated QR PNG. 256px scans reliably
// from a laptop screen and stays under a few KB.
const qrSizePx = 256

// StatusQR renders the request's status page URL as a PNG QR code, ready to
// attach to an outgoing email.
func StatusQR(statusURL string) (Attachment, error) {
	png, err := qrcode.Encode(statusURL, qrcode.Medium, qrSizePx)
	if err != nil {
		return Attachment{}, fmt.Errorf("encode status qr: %w", err)
	}
	return Attachment{FileName: "request-status.png", Content: png}, nil
}
