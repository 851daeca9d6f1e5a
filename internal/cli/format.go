package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/javanstorm/capledger/internal/api"
	"github.com/ryanuber/columnize"
)

// formatList aligns pipe-separated rows, replacing blank fields with a
// placeholder.
func formatList(in []string) string {
	columnConf := columnize.DefaultConfig()
	columnConf.Empty = "<none>"
	return columnize.Format(in, columnConf)
}

// formatKV aligns key|value rows as "key = value".
func formatKV(in []string) string {
	columnConf := columnize.DefaultConfig()
	columnConf.Empty = "<none>"
	columnConf.Glue = " = "
	return columnize.Format(in, columnConf)
}

// report prints a successful response and turns a failed one into the
// command's error.
func report(out io.Writer, resp api.Response) error {
	if !resp.OK() {
		return errors.New(resp.Message)
	}
	fmt.Fprintln(out, resp.Message)
	return nil
}
