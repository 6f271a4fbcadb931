package auth

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/campusdesk/cli/internal/utils"
)

// Page markers. The portal rewords its messages between releases, so each
// failure lists every phrasing seen so far.
const (
	csrfSelector         = `input[name="_csrf"]`
	recaptchaSelector    = `.g-recaptcha, [data-sitekey], script[src*="recaptcha"]`
	captchaImageSelector = `#captchaBlock img, img.captcha, img[src^="data:image"], img[src*="captcha"]`
	authorizedIDSelector = `#authorizedIDX, input[name="authorizedID"], input[name="authorizedid"]`
)

var (
	invalidCaptchaMarkers = []string{
		"invalid captcha",
	}
	invalidCredentialMarkers = []string{
		"invalid username / password",
		"invalid loginid/password",
		"invalid user id / password",
	}
)

func parseHTML(body []byte) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse portal page: %w", err)
	}
	return doc, nil
}

// CSRFToken returns the first _csrf hidden field value, or "".
func CSRFToken(doc *goquery.Document) string {
	value, _ := doc.Find(csrfSelector).First().Attr("value")
	return strings.TrimSpace(value)
}

func authorizedID(doc *goquery.Document) string {
	value, _ := doc.Find(authorizedIDSelector).First().Attr("value")
	return strings.TrimSpace(value)
}

func hasRecaptcha(doc *goquery.Document) bool {
	return doc.Find(recaptchaSelector).Length() > 0
}

func captchaSource(doc *goquery.Document) string {
	src, _ := doc.Find(captchaImageSelector).First().Attr("src")
	return strings.TrimSpace(src)
}

// classify decides the login outcome from the landing page. The authorized
// session marker wins over any error text on the same page.
func classify(doc *goquery.Document) (string, error) {
	if id := authorizedID(doc); id != "" {
		return id, nil
	}

	text := strings.ToLower(doc.Text())
	if containsAny(text, invalidCaptchaMarkers) {
		return "", utils.ErrInvalidCaptcha
	}
	if containsAny(text, invalidCredentialMarkers) {
		return "", utils.ErrInvalidCredentials
	}
	return "", utils.ErrUnknownLoginFailure
}

func containsAny(text string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(text, m) {
			return true
		}
	}
	return false
}

// ExtractCSRF returns the _csrf token of an HTML page body, or "".
func ExtractCSRF(body []byte) string {
	doc, err := parseHTML(body)
	if err != nil {
		return ""
	}
	return CSRFToken(doc)
}
