package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"swevalidator/internal/validator"
)

// inCI reports whether we are running inside GitHub Actions.
func inCI() bool {
	return os.Getenv("GITHUB_ACTIONS") == "true"
}

// escapeData escapes a workflow command message.
func escapeData(s string) string {
	s = strings.ReplaceAll(s, "%", "%25")
	s = strings.ReplaceAll(s, "\r", "%0D")
	s = strings.ReplaceAll(s, "\n", "%0A")
	return s
}

// escapeProperty escapes a workflow command property value.
func escapeProperty(s string) string {
	s = escapeData(s)
	s = strings.ReplaceAll(s, ":", "%3A")
	s = strings.ReplaceAll(s, ",", "%2C")
	return s
}

// annotation formats one ::error workflow command.
func annotation(err *validator.ValidationError) string {
	return fmt.Sprintf("::error title=%s::%s", escapeProperty(err.InstanceID), escapeData(err.AnnotationMessage()))
}

// annotate writes one annotation per failure when running in CI.
func annotate(w io.Writer, errs []*validator.ValidationError) {
	if !inCI() {
		return
	}
	for _, err := range errs {
		if err == nil {
			continue
		}
		fmt.Fprintln(w, annotation(err))
	}
}
