package source

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"

	"kisaanmitra/internal/domain"
)

// ReadCSV builds a table from CSV data. The first record is the header.
func ReadCSV(name string, r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, domain.NewDomainError("ReadCSV", domain.ErrDatasetLoad, name+": empty file")
	}
	if err != nil {
		return nil, domain.NewDomainError("ReadCSV", domain.ErrDatasetLoad, fmt.Sprintf("%s: header: %v", name, err))
	}
	records, err := cr.ReadAll()
	if err != nil {
		return nil, domain.NewDomainError("ReadCSV", domain.ErrDatasetLoad, fmt.Sprintf("%s: %v", name, err))
	}
	t, err := NewTable(name, header, records)
	if err != nil {
		return nil, domain.NewDomainError("ReadCSV", domain.ErrDatasetLoad, err.Error())
	}
	return t, nil
}

// LoadCSVFile reads a CSV dataset from disk.
func LoadCSVFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, domain.NewDomainError("LoadCSVFile", domain.ErrDatasetLoad, err.Error())
	}
	defer f.Close()
	return ReadCSV(path, f)
}
