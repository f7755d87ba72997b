package dashboard

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"callshield/internal/backend"
	"callshield/internal/backendserver"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
)

type palette struct {
	good, bad, warn, title *color.Color
}

func newPalette(plain bool) palette {
	p := palette{
		good:  color.New(color.FgGreen),
		bad:   color.New(color.FgRed),
		warn:  color.New(color.FgYellow),
		title: color.New(color.Bold),
	}
	if plain {
		for _, c := range []*color.Color{p.good, p.bad, p.warn, p.title} {
			c.DisableColor()
		}
	}
	return p
}

func (p palette) decision(a backend.Action) string {
	switch a {
	case backend.ActionReject:
		return p.bad.Sprint("Blocked")
	case backend.ActionRedirect:
		return p.warn.Sprint("Redirected")
	case backend.ActionAllow:
		return p.good.Sprint("Allowed")
	default:
		return string(a)
	}
}

// Render writes a snapshot as a status line and two tables.
func Render(w io.Writer, s Snapshot, plain bool) error {
	pal := newPalette(plain)

	status := pal.good.Sprint("Backend Online")
	if s.HealthErr != nil || !s.Healthy {
		status = pal.bad.Sprint("Backend Offline")
	}
	if _, err := fmt.Fprintf(w, "%s  %s  (updated %s)\n\n",
		pal.title.Sprint("CallShield"), status, s.FetchedAt.Format(time.TimeOnly)); err != nil {
		return err
	}

	if s.Summary == nil {
		fmt.Fprintf(w, "Summary unavailable: %v\n\n", s.SummaryErr)
	} else {
		renderSummary(w, *s.Summary)
		fmt.Fprintln(w)
	}

	switch {
	case s.CallsErr != nil:
		fmt.Fprintf(w, "Recent calls unavailable: %v\n", s.CallsErr)
	case len(s.Calls) == 0:
		fmt.Fprintln(w, "No calls yet")
	default:
		renderCalls(w, s.Calls, pal)
	}
	return nil
}

func renderSummary(w io.Writer, sum backendserver.Summary) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Total Today", "Blocked", "Redirected", "Allowed", "Devices", "Blocked Numbers", "Time Wasted", "Top Persona"})
	table.SetBorder(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.Append([]string{
		strconv.Itoa(sum.TotalCallsToday),
		strconv.Itoa(sum.BlockedCallsToday),
		strconv.Itoa(sum.RedirectedCallsToday),
		strconv.Itoa(sum.AllowedCallsToday),
		strconv.Itoa(sum.RegisteredDevices),
		strconv.Itoa(sum.BlockedNumbers),
		(time.Duration(sum.TotalTimeWasted) * time.Second).String(),
		sum.MostEffectivePersona,
	})
	table.Render()
}

func renderCalls(w io.Writer, records []backendserver.CallRecord, pal palette) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Time", "Caller", "Device", "Decision", "Redirect", "Status"})
	table.SetBorder(true)
	table.SetRowLine(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)

	for _, r := range records {
		redirect := "-"
		if r.RedirectNumber != "" {
			redirect = r.RedirectNumber
		}
		status := "-"
		if r.FinalStatus != "" {
			status = string(r.FinalStatus)
		}
		table.Append([]string{
			r.ReceivedAt.Local().Format(time.TimeOnly),
			r.CallerID,
			r.DeviceID,
			pal.decision(r.Decision),
			redirect,
			status,
		})
	}
	table.Render()
}

// RenderCall writes the details of one call, then its transcript if a
// persona answered it.
func RenderCall(w io.Writer, d backendserver.CallDetails, plain bool) {
	pal := newPalette(plain)
	r := d.Call
	table := tablewriter.NewWriter(w)
	table.SetBorder(true)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	rows := [][]string{
		{"ID", r.ID},
		{"Caller", r.CallerID},
		{"Device", r.DeviceID},
		{"Source", r.Source},
		{"Decision", pal.decision(r.Decision)},
		{"Redirect", r.RedirectNumber},
		{"Timestamp", r.Timestamp},
		{"Status", string(r.FinalStatus)},
	}
	if r.Persona != "" {
		rows = append(rows,
			[]string{"Persona", r.Persona},
			[]string{"Call Status", r.CallStatus},
			[]string{"Duration", (time.Duration(r.DurationSeconds) * time.Second).String()},
		)
	}
	table.AppendBulk(rows)
	table.Render()

	if len(d.Conversation) == 0 {
		return
	}
	fmt.Fprintln(w)
	conv := tablewriter.NewWriter(w)
	conv.SetHeader([]string{"Time", "Speaker", "Message"})
	conv.SetBorder(true)
	conv.SetAutoWrapText(true)
	conv.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	conv.SetAlignment(tablewriter.ALIGN_LEFT)
	for _, t := range d.Conversation {
		conv.Append([]string{t.At.Local().Format(time.TimeOnly), string(t.Speaker), t.Message})
	}
	conv.Render()
}
