// Package workbook reads indent item templates and writes comparative
// statement workbooks in xlsx format.
package workbook

import (
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/odyssey-erp/odyssey-procure/internal/procurement"
)

// ContentType is the MIME type of generated workbooks.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

const indentSheet = "Items"

var indentHeaders = []string{"Item Code", "Item Name", "UOM", "Rate", "Available Qty", "Required Qty"}

func headerStyle(f *excelize.File) (int, error) {
	return f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#D9E1F2"}},
	})
}

func writeHeader(f *excelize.File, sheet string, headers []string) error {
	style, err := headerStyle(f)
	if err != nil {
		return err
	}
	for i, h := range headers {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		cell := col + "1"
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return err
		}
		if err := f.SetCellStyle(sheet, cell, cell, style); err != nil {
			return err
		}
		if err := f.SetColWidth(sheet, col, col, 16); err != nil {
			return err
		}
	}
	return nil
}

// WriteIndentTemplate writes an empty item template.
func WriteIndentTemplate(w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", indentSheet); err != nil {
		return err
	}
	if err := writeHeader(f, indentSheet, indentHeaders); err != nil {
		return err
	}
	return f.Write(w)
}

// ReadIndentTemplate parses the first sheet of an uploaded template into item
// inputs. The header row is skipped and blank rows are ignored.
func ReadIndentTemplate(r io.Reader) ([]procurement.IndentItemInput, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: workbook: open: %v", procurement.ErrValidation, err)
	}
	defer f.Close()
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: workbook: no sheets", procurement.ErrValidation)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("workbook: read rows: %w", err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("%w: workbook: template has no item rows", procurement.ErrValidation)
	}
	var items []procurement.IndentItemInput
	for i, row := range rows[1:] {
		line := i + 2
		if blank(row) {
			continue
		}
		code := cell(row, 0)
		if code == "" {
			return nil, fmt.Errorf("%w: workbook: row %d: item code is empty", procurement.ErrValidation, line)
		}
		rate, err := number(row, 3)
		if err != nil {
			return nil, fmt.Errorf("%w: workbook: row %d: rate: %v", procurement.ErrValidation, line, err)
		}
		avail, err := number(row, 4)
		if err != nil {
			return nil, fmt.Errorf("%w: workbook: row %d: available qty: %v", procurement.ErrValidation, line, err)
		}
		required, err := number(row, 5)
		if err != nil {
			return nil, fmt.Errorf("%w: workbook: row %d: required qty: %v", procurement.ErrValidation, line, err)
		}
		items = append(items, procurement.IndentItemInput{
			ItemCode:     code,
			ItemName:     cell(row, 1),
			UOM:          cell(row, 2),
			Rate:         rate,
			AvailableQty: avail,
			RequiredQty:  required,
		})
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: workbook: template has no item rows", procurement.ErrValidation)
	}
	return items, nil
}

// WriteComparativeStatement exports the comparison rows and vendor entries of an RFQ.
func WriteComparativeStatement(w io.Writer, rfq procurement.RFQ, rows []procurement.CSRow, entries []procurement.CSEntry) error {
	f := excelize.NewFile()
	defer f.Close()

	const compare = "Comparison"
	if err := f.SetSheetName("Sheet1", compare); err != nil {
		return err
	}
	if err := writeHeader(f, compare, []string{"Item Code", "Item Name", "UOM", "Required Qty", "Vendor", "Quotation", "Can Provide", "Rate", "Qty We Need", "Total", "Payment Terms", "Remarks", "Row Status"}); err != nil {
		return err
	}
	line := 2
	for _, row := range rows {
		for _, v := range row.Vendors {
			values := []any{row.ItemCode, row.ItemName, row.UOM, row.RequiredQty.InexactFloat64(), v.Vendor.Name, v.QuotationNo,
				v.CanProvideQty.InexactFloat64(), v.Rate.InexactFloat64(), v.QtyWeNeed.InexactFloat64(), v.TotalAmount.InexactFloat64(),
				v.PaymentTerms, v.Remarks, string(row.Status)}
			if err := setRow(f, compare, line, values); err != nil {
				return err
			}
			line++
		}
	}

	const vendors = "Vendors"
	if _, err := f.NewSheet(vendors); err != nil {
		return err
	}
	if err := writeHeader(f, vendors, []string{"RFQ", "Vendor ID", "Vendor", "Contact", "Items", "Total Amount", "Status", "PO"}); err != nil {
		return err
	}
	grand := decimal.Zero
	for i, entry := range entries {
		codes := make([]string, 0, len(entry.Items))
		for _, item := range entry.Items {
			codes = append(codes, item.ItemCode)
		}
		values := []any{rfq.Number, entry.Vendor.ID, entry.Vendor.Name, entry.ContactNo, strings.Join(codes, ", "),
			entry.TotalAmount.InexactFloat64(), string(entry.Status), entry.PONumber}
		if err := setRow(f, vendors, i+2, values); err != nil {
			return err
		}
		if entry.Status != procurement.StatusRejected {
			grand = grand.Add(entry.TotalAmount)
		}
	}
	total := len(entries) + 2
	if err := f.SetCellValue(vendors, fmt.Sprintf("E%d", total), "Total (excluding rejected)"); err != nil {
		return err
	}
	if err := f.SetCellValue(vendors, fmt.Sprintf("F%d", total), grand.InexactFloat64()); err != nil {
		return err
	}
	return f.Write(w)
}

func setRow(f *excelize.File, sheet string, line int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, line)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &values)
}

func cell(row []string, idx int) string {
	if idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func number(row []string, idx int) (decimal.Decimal, error) {
	raw := strings.ReplaceAll(cell(row, idx), ",", "")
	if raw == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(raw)
}

func blank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
