// Package jsonutil decodes JSON produced by datasources (files, row_to_json, FOR JSON)
// into the document model.
package jsonutil

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/ekaya-inc/ekaya-catalog/pkg/document"
)

// ErrNotObject is returned when a JSON value that should be a document is not an object.
var ErrNotObject = errors.New("json value is not an object")

// DecodeDocument parses one JSON object. Numbers keep their integer or float nature.
func DecodeDocument(data []byte) (document.Document, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		if isTypeError(err) {
			return nil, ErrNotObject
		}
		return nil, err
	}
	if m == nil {
		return nil, ErrNotObject
	}
	return document.DocumentFromMap(m), nil
}

// DecodeDocuments reads documents from r until EOF or limit documents were read. The
// input is either a single JSON array of objects or a stream of objects (JSON lines).
// A non-positive limit reads everything.
func DecodeDocuments(r io.Reader, limit int) ([]document.Document, error) {
	br := bufio.NewReader(r)
	first, err := peekNonSpace(br)
	if errors.Is(err, io.EOF) {
		return []document.Document{}, nil
	}
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(br)
	dec.UseNumber()

	if first == '[' {
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
	}

	docs := []document.Document{}
	for limit <= 0 || len(docs) < limit {
		if first == '[' && !dec.More() {
			break
		}
		var m map[string]any
		err := dec.Decode(&m)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if isTypeError(err) {
				return nil, fmt.Errorf("document %d: %w", len(docs), ErrNotObject)
			}
			return nil, fmt.Errorf("document %d: %w", len(docs), err)
		}
		if m == nil {
			return nil, fmt.Errorf("document %d: %w", len(docs), ErrNotObject)
		}
		docs = append(docs, document.DocumentFromMap(m))
	}
	return docs, nil
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		}
		return b, br.UnreadByte()
	}
}

func isTypeError(err error) bool {
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &typeErr)
}
