package shopsync

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// WriteMismatchReportXlsx renders one store's reconciliation outcome as a
// spreadsheet for the operations team: planned updates on one sheet, the
// two-sided mismatches on another.
func WriteMismatchReportXlsx(w io.Writer, store string, plan *InventoryPlan) error {
	f := excelize.NewFile()
	defer f.Close()

	updates := "Updates"
	if err := f.SetSheetName("Sheet1", updates); err != nil {
		return err
	}
	f.SetCellValue(updates, "A1", "Store")
	f.SetCellValue(updates, "B1", "SKU")
	f.SetCellValue(updates, "C1", "CurrentQty")
	f.SetCellValue(updates, "D1", "TargetQty")
	for i, u := range plan.Updates {
		row := fmt.Sprint(i + 2)
		f.SetCellValue(updates, "A"+row, store)
		f.SetCellValue(updates, "B"+row, u.Sku)
		f.SetCellValue(updates, "C"+row, u.Current)
		f.SetCellValue(updates, "D"+row, u.Target)
	}

	mismatches := "Mismatches"
	if _, err := f.NewSheet(mismatches); err != nil {
		return err
	}
	f.SetCellValue(mismatches, "A1", "Kind")
	f.SetCellValue(mismatches, "B1", "SKU")
	f.SetCellValue(mismatches, "C1", "Detail")
	row := 2
	for _, sku := range plan.Mismatches.NotInErp {
		f.SetCellValue(mismatches, "A"+fmt.Sprint(row), ErrCodeNotInErp)
		f.SetCellValue(mismatches, "B"+fmt.Sprint(row), sku)
		row++
	}
	for _, code := range plan.Mismatches.NotInStorefront {
		f.SetCellValue(mismatches, "A"+fmt.Sprint(row), ErrCodeNotInStorefront)
		f.SetCellValue(mismatches, "B"+fmt.Sprint(row), code)
		row++
	}
	for _, mc := range plan.Mismatches.MissingComponents {
		f.SetCellValue(mismatches, "A"+fmt.Sprint(row), ErrCodeBundleComponentMissing)
		f.SetCellValue(mismatches, "B"+fmt.Sprint(row), mc.Sku)
		f.SetCellValue(mismatches, "C"+fmt.Sprint(row), "component "+mc.ComponentCode)
		row++
	}

	return f.Write(w)
}

// WriteDuplicateReportXlsx renders the advisory duplicate groups, one row per
// flagged ERP order, grouped by group number.
func WriteDuplicateReportXlsx(w io.Writer, store string, groups []DuplicateGroup) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := "Duplicates"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return err
	}
	f.SetCellValue(sheet, "A1", "Group")
	f.SetCellValue(sheet, "B1", "Signal")
	f.SetCellValue(sheet, "C1", "Store")
	f.SetCellValue(sheet, "D1", "ErpOrderNumber")
	f.SetCellValue(sheet, "E1", "ErpGuid")
	f.SetCellValue(sheet, "F1", "CustomerCode")
	f.SetCellValue(sheet, "G1", "ExternalRef")
	f.SetCellValue(sheet, "H1", "Total")
	f.SetCellValue(sheet, "I1", "OrderDate")

	row := 2
	for g, group := range groups {
		for _, o := range group.Orders {
			n := fmt.Sprint(row)
			f.SetCellValue(sheet, "A"+n, g+1)
			f.SetCellValue(sheet, "B"+n, group.Signal)
			f.SetCellValue(sheet, "C"+n, store)
			f.SetCellValue(sheet, "D"+n, o.OrderNumber)
			f.SetCellValue(sheet, "E"+n, o.Guid)
			f.SetCellValue(sheet, "F"+n, o.CustomerCode)
			f.SetCellValue(sheet, "G"+n, o.ExternalRef)
			f.SetCellValue(sheet, "H"+n, o.Total.String())
			if !o.OrderDate.IsZero() {
				f.SetCellValue(sheet, "I"+n, o.OrderDate.Format("2006-01-02 15:04"))
			}
			row++
		}
	}

	return f.Write(w)
}
