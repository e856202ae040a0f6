package service

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/alcyxob/lms-progress/internal/domain"
)

const certificateContentType = "text/html; charset=utf-8"

var certificateTemplate = template.Must(template.New("certificate").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Certificate {{.ID}}</title>
</head>
<body>
<main class="certificate">
<h1>Certificate of Completion</h1>
<p class="holder">{{.UserName}}</p>
<p>has completed</p>
<p class="course">{{.CourseTitle}}</p>
<p class="date">{{.CompletionDate.Format "2 January 2006"}}</p>
<footer>Certificate ID: <code>{{.ID}}</code></footer>
</main>
</body>
</html>
`))

// certificateObjectKey is where the rendered document of a certificate lives.
func certificateObjectKey(id string) string {
	return fmt.Sprintf("certificates/%s.html", id)
}

// renderCertificate produces the printable HTML document for a certificate.
// Snapshot fields are escaped by html/template.
func renderCertificate(cert *domain.Certificate) ([]byte, error) {
	var buf bytes.Buffer
	if err := certificateTemplate.Execute(&buf, cert); err != nil {
		return nil, fmt.Errorf("render certificate %s: %w", cert.ID, err)
	}
	return buf.Bytes(), nil
}
