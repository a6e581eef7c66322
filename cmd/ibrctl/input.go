package main

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/okian/biotica/internal/domain/ibr"
	"github.com/okian/biotica/internal/domain/stats"
)

// parameterFile is either {"parameters": {...}, "raw_measurements": {...}}
// or a bare code -> value object.
type parameterFile struct {
	Parameters map[string]any       `json:"parameters"`
	Raw        *ibr.RawMeasurements `json:"raw_measurements"`
}

// readParameters decodes a parameter file without range checks. Values that
// are not numbers are returned as messages.
func readParameters(cmd *cli.Command) (ibr.Parameters, []string, error) {
	path, err := argPath(cmd)
	if err != nil {
		return nil, nil, err
	}
	rc, err := openInput(cmd, path)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = rc.Close() }()

	raw, err := io.ReadAll(rc)
	if err != nil {
		return nil, nil, fmt.Errorf("read %s: %w", path, err)
	}
	var doc parameterFile
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if doc.Parameters == nil && doc.Raw == nil {
		if err := json.Unmarshal(raw, &doc.Parameters); err != nil {
			return nil, nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	params, messages := ibr.ParseValues(doc.Parameters)
	if doc.Raw != nil {
		params = ibr.DeriveParameters(params, *doc.Raw)
	}
	return params, messages, nil
}

// readStrictParameters is readParameters failing on any type or range problem.
func readStrictParameters(cmd *cli.Command) (ibr.Parameters, error) {
	params, messages, err := readParameters(cmd)
	if err != nil {
		return nil, err
	}
	if len(messages) > 0 {
		return nil, &ibr.InvalidParameterError{Messages: messages}
	}
	if err := ibr.ValidateStrict(params); err != nil {
		return nil, err
	}
	return params, nil
}

// readTable loads a CSV file whose first row names the columns. Empty cells
// and NA/NaN/null are missing values.
func readTable(cmd *cli.Command) (*stats.Table, error) {
	path, err := argPath(cmd)
	if err != nil {
		return nil, err
	}
	rc, err := openInput(cmd, path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()

	t, err := parseCSV(rc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

func parseCSV(r io.Reader) (*stats.Table, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty csv")
		}
		return nil, err
	}
	names := make([]string, len(header))
	for i, h := range header {
		names[i] = strings.TrimSpace(h)
	}
	columns := make([][]float64, len(names))

	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		line++
		for i, cell := range rec {
			v, err := parseCell(cell)
			if err != nil {
				return nil, fmt.Errorf("line %d column %q: %w", line, names[i], err)
			}
			columns[i] = append(columns[i], v)
		}
	}
	return stats.NewTable(names, columns)
}

func parseCell(cell string) (float64, error) {
	s := strings.TrimSpace(cell)
	switch strings.ToLower(s) {
	case "", "na", "nan", "null":
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}

// rowParameters turns each table row into a parameter set over the canonical
// columns present. Missing cells are left out.
func rowParameters(t *stats.Table) []ibr.Parameters {
	out := make([]ibr.Parameters, t.Rows())
	for i := range out {
		out[i] = ibr.Parameters{}
	}
	for _, name := range t.Names() {
		code := ibr.Code(strings.ToUpper(name))
		if !ibr.IsCanonical(code) {
			continue
		}
		col, _ := t.Column(name)
		for i, v := range col {
			if !math.IsNaN(v) {
				out[i][code] = v
			}
		}
	}
	return out
}
