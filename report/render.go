package report

import (
	"bytes"
	"embed"
	"github.com/pkg/errors"
	htmlTemplate "html/template"
	"osm4cities/storage"
	textTemplate "text/template"
	"time"
)

//go:embed templates/*
var templateFiles embed.FS

var templateFuncs = map[string]any{
	"date": func(t *time.Time) string {
		if t == nil {
			return "never"
		}
		return t.UTC().Format("2006-01-02 15:04 UTC")
	},
}

var (
	htmlReportTemplate = htmlTemplate.Must(htmlTemplate.New("report.html.tmpl").Funcs(templateFuncs).ParseFS(templateFiles, "templates/report.html.tmpl"))
	textReportTemplate = textTemplate.Must(textTemplate.New("report.txt.tmpl").Funcs(templateFuncs).ParseFS(templateFiles, "templates/report.txt.tmpl"))
)

type templateData struct {
	User    *storage.User
	Content *EmailContent
	Now     time.Time
}

func render(user *storage.User, content *EmailContent, now time.Time) (string, string, error) {
	data := templateData{User: user, Content: content, Now: now}

	htmlBuffer := &bytes.Buffer{}
	err := htmlReportTemplate.Execute(htmlBuffer, data)
	if err != nil {
		return "", "", errors.Wrapf(err, "Unable to render HTML report of user %s", user.ID)
	}

	textBuffer := &bytes.Buffer{}
	err = textReportTemplate.Execute(textBuffer, data)
	if err != nil {
		return "", "", errors.Wrapf(err, "Unable to render text report of user %s", user.ID)
	}

	return htmlBuffer.String(), textBuffer.String(), nil
}
