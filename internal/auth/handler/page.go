package handler

import (
	"fmt"
	"html"
	"time"
)

const pageTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta http-equiv="refresh" content="%d;url=%s">
<title>%s</title>
</head>
<body>
<p>%s</p>
</body>
</html>
`

func failurePage(message, redirect string, delay time.Duration) []byte {
	msg := html.EscapeString(message)
	return []byte(fmt.Sprintf(pageTemplate,
		int(delay.Round(time.Second)/time.Second),
		html.EscapeString(redirect),
		msg,
		msg,
	))
}
