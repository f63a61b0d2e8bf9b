// Package pdfmeta embeds analysis results into PDF document properties and
// reads them back, so a result travels with the file itself independent of
// history storage. Values are base64-encoded to survive PDF string escaping.
package pdfmeta

import (
	"encoding/base64"
	"fmt"
	"os"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// Reserved property keys. Foreign writers are not expected to touch these.
const (
	keyResult      = "ShirabeResult"
	keyInstruction = "ShirabeInstruction"
	keyDate        = "ShirabeDate"
	keyVersion     = "ShirabeVersion"

	formatVersion = "1.0"
)

// EmbeddedData is the payload stored inside a PDF.
type EmbeddedData struct {
	Result      string
	Instruction string
	Date        string
}

// Codec reads and writes embedded analysis data on PDF files in place.
type Codec struct{}

// New returns a Codec.
func New() *Codec {
	return &Codec{}
}

// Embed writes result and instruction into the PDF's properties, stamping the
// current time. The file is rewritten in place.
func (c *Codec) Embed(path, result, instruction string) error {
	props := map[string]string{
		keyResult:  encode(result),
		keyDate:    time.Now().Format("2006-01-02 15:04:05"),
		keyVersion: formatVersion,
	}
	if instruction != "" {
		props[keyInstruction] = encode(instruction)
	}
	if err := api.AddPropertiesFile(path, "", props, nil); err != nil {
		return fmt.Errorf("embed properties in %s: %w", path, err)
	}
	return nil
}

// Read returns the embedded data from path, or (nil, nil) when the file
// carries none. A file that cannot be opened as a PDF is an error.
func (c *Codec) Read(path string) (*EmbeddedData, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	props, err := api.Properties(f, nil)
	if err != nil {
		return nil, fmt.Errorf("list properties of %s: %w", path, err)
	}
	encoded, ok := props[keyResult]
	if !ok {
		return nil, nil
	}
	result, err := decode(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode embedded result of %s: %w", path, err)
	}
	data := &EmbeddedData{
		Result: result,
		Date:   props[keyDate],
	}
	if enc, ok := props[keyInstruction]; ok {
		if inst, err := decode(enc); err == nil {
			data.Instruction = inst
		}
	}
	return data, nil
}

func encode(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

func decode(s string) (string, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
