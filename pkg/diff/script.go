package diff

import (
	"fmt"
	"strings"

	"github.com/David-Botos/schemadiff/pkg/model"
)

// renderScript serializes the operations carrying SQL. Every statement ends
// with ";\n" and is preceded by a comment naming its operation.
func renderScript(database, version string, r *Result) string {
	var body strings.Builder
	for _, op := range r.Operations {
		if len(op.SQL) == 0 {
			continue
		}
		body.WriteString("\n-- ")
		body.WriteString(commentText(op.Description))
		body.WriteString("\n")
		for _, stmt := range op.SQL {
			body.WriteString(stmt)
			body.WriteString(";\n")
		}
	}
	if body.Len() == 0 {
		return ""
	}

	if version == "" {
		version = "latest"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "-- Reconciliation script for database %s\n", commentText(database))
	fmt.Fprintf(&sb, "-- Target version: %s\n", commentText(version))
	fmt.Fprintf(&sb, "-- Operations: %d create, %d alter, %d drop, %d ignored\n",
		r.Count(model.DiffCreate), r.Count(model.DiffAlter), r.Count(model.DiffDrop), r.Count(model.DiffIgnore))
	sb.WriteString(body.String())
	return sb.String()
}

// Identifiers reach comments unquoted; a line break would end the comment early.
var commentBreaks = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ")

// commentText flattens s onto a single comment line
func commentText(s string) string {
	return commentBreaks.Replace(s)
}
