// Package scan feeds class facts produced by an external bytecode scanner
// into a bindeps.Builder.
//
// The scanner output is a JSON-lines manifest with one class per line:
//
//	{"name":"com/Foo","access":33,"super":"java/lang/Object","interfaces":["java/io/Closeable"],"dependencies":["com/Bar"]}
//
// Blank lines and lines starting with '#' are ignored.
package scan

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/fastmerger/internal/bindeps"
	apperrors "github.com/fastmerger/pkg/errors"
)

// maxLineSize bounds a single manifest line.
const maxLineSize = 16 * 1024 * 1024

// ClassRecord is one manifest line.
type ClassRecord struct {
	Name         string   `json:"name"`
	Access       int32    `json:"access"`
	Super        string   `json:"super,omitempty"`
	Interfaces   []string `json:"interfaces,omitempty"`
	Annotations  []string `json:"annotations,omitempty"`
	Dependencies []string `json:"dependencies,omitempty"`
}

// ReadManifest parses a JSON-lines manifest. Errors name the offending
// line number.
func ReadManifest(r io.Reader) ([]ClassRecord, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	var records []ClassRecord
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 || line[0] == '#' {
			continue
		}

		var rec ClassRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, apperrors.Wrap(apperrors.CodeInvalidInput,
				fmt.Sprintf("manifest line %d", lineNum), err)
		}
		if rec.Name == "" {
			return nil, apperrors.Newf(apperrors.CodeInvalidInput,
				"manifest line %d: missing class name", lineNum)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeIOError, "read manifest", err)
	}
	return records, nil
}

// WriteManifest writes records as JSON lines.
func WriteManifest(w io.Writer, records []ClassRecord) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	enc.SetEscapeHTML(false)
	for i := range records {
		if err := enc.Encode(&records[i]); err != nil {
			return apperrors.Wrap(apperrors.CodeIOError, "write manifest", err)
		}
	}
	if err := bw.Flush(); err != nil {
		return apperrors.Wrap(apperrors.CodeIOError, "write manifest", err)
	}
	return nil
}

// Replay reports rec to v in the order a scanner would: class info first,
// then interfaces, annotations and dependencies.
func Replay(rec ClassRecord, v bindeps.ClassVisitor) error {
	if err := v.AcceptClassInfo(rec.Name, rec.Access, rec.Super); err != nil {
		return err
	}
	for _, iface := range rec.Interfaces {
		if err := v.AcceptInterface(rec.Name, iface); err != nil {
			return err
		}
	}
	for _, ann := range rec.Annotations {
		if err := v.AcceptAnnotation(rec.Name, ann); err != nil {
			return err
		}
	}
	for _, dep := range rec.Dependencies {
		if err := v.AcceptClassDependency(rec.Name, dep); err != nil {
			return err
		}
	}
	return nil
}
