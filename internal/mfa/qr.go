package mfa

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image/png"
	"strings"

	"github.com/pquerna/otp"
)

const (
	dataURLPrefix = "data:image/png;base64,"
	qrSize        = 220
)

// qrDataURL returns the backend image as a data URL, accepting either a data URL or bare
// base64. Without one, the image is rendered locally from the otpauth URL.
func qrDataURL(backendQR, otpauthURL string) (string, error) {
	backendQR = strings.TrimSpace(backendQR)
	if strings.HasPrefix(backendQR, "data:") {
		return backendQR, nil
	}
	if backendQR != "" {
		return dataURLPrefix + backendQR, nil
	}
	key, err := otp.NewKeyFromURL(otpauthURL)
	if err != nil {
		return "", fmt.Errorf("mfa: parse otpauth url: %w", err)
	}
	img, err := key.Image(qrSize, qrSize)
	if err != nil {
		return "", fmt.Errorf("mfa: render qr: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("mfa: encode qr: %w", err)
	}
	return dataURLPrefix + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// secretOf prefers the explicit secret and falls back to the otpauth URL.
func secretOf(secret, otpauthURL string) string {
	if s := strings.TrimSpace(secret); s != "" {
		return s
	}
	key, err := otp.NewKeyFromURL(otpauthURL)
	if err != nil {
		return ""
	}
	return key.Secret()
}
