package export

import (
	"bufio"
	"bytes"
	"encoding/json"

	"github.com/roach88/meshflow/internal/ir"
	"github.com/roach88/meshflow/internal/kernel"
)

func writeJSON(w *bufio.Writer, t kernel.Tables, _ Options) error {
	obj := ir.Object{
		"kind":   ir.String(t.Kind),
		"tables": t.Object(),
	}
	data, err := obj.MarshalJSON()
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		return err
	}
	buf.WriteByte('\n')
	_, err = w.Write(buf.Bytes())
	return err
}
