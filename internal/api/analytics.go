package api

import (
	"fmt"
	"net/http"

	"github.com/xuri/excelize/v2"

	"github.com/fishook/fishook/internal/backend"
)

// DashboardHandler serves the analytics snapshot, read through the Redis
// cache when one is configured. A cache failure only logs; the backend is the
// source of truth.
func (a *Api) DashboardHandler(w http.ResponseWriter, r *http.Request) {
	d, err := a.dashboard(r)
	if err != nil {
		a.logger.Error(fmt.Sprintf("dashboard: %v", err))
		writeBackendError(w, err)
		return
	}
	WriteJsonResponse(w, d)
}

func (a *Api) dashboard(r *http.Request) (*backend.Dashboard, error) {
	shop := ShopFromRequest(r)

	if a.stats != nil {
		cached, err := a.stats.Get(r.Context(), shop)
		if err != nil {
			a.logger.Warn(fmt.Sprintf("stats cache get: %v", err))
		} else if cached != nil {
			return cached, nil
		}
	}

	d, err := a.backend.Dashboard(r.Context(), shop)
	if err != nil {
		return nil, err
	}

	if a.stats != nil {
		if err := a.stats.Set(r.Context(), shop, d); err != nil {
			a.logger.Warn(fmt.Sprintf("stats cache set: %v", err))
		}
	}
	return d, nil
}

// ExportDashboardHandler renders the snapshot as an XLSX workbook with a
// summary sheet and the per-day chart data.
func (a *Api) ExportDashboardHandler(w http.ResponseWriter, r *http.Request) {
	d, err := a.dashboard(r)
	if err != nil {
		a.logger.Error(fmt.Sprintf("dashboard export: %v", err))
		writeBackendError(w, err)
		return
	}

	f := excelize.NewFile()
	defer f.Close()

	const summary = "Summary"
	f.SetSheetName("Sheet1", summary)
	rows := [][]interface{}{
		{"Shop", d.Shop},
		{"Total chats", d.TotalChats},
		{"Open chats", d.OpenChats},
		{"Messages sent", d.MessagesSent},
		{"Avg response (s)", d.AvgResponseSecs},
		{"Credit balance", d.CreditBalance},
		{"Generated at", d.GeneratedAt.Format("2006-01-02 15:04:05")},
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(summary, cell, &row); err != nil {
			a.logger.Error(fmt.Sprintf("xlsx summary row: %v", err))
		}
	}

	const daily = "Daily"
	if _, err := f.NewSheet(daily); err == nil {
		header := []interface{}{"Date", "Chats", "Messages"}
		f.SetSheetRow(daily, "A1", &header)
		for i, p := range d.Daily {
			row := []interface{}{p.Date, p.Chats, p.Messages}
			cell, _ := excelize.CoordinatesToCellName(1, i+2)
			f.SetSheetRow(daily, cell, &row)
		}
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="fishook-analytics.xlsx"`)
	if err := f.Write(w); err != nil {
		a.logger.Error(fmt.Sprintf("xlsx write: %v", err))
	}
}
