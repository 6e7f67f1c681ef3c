package main

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"support-chat/client"
	"support-chat/domain/chat"
	"support-chat/domain/search"

	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"
)

func newTable(out io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(out)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	return table
}

var statusStyles = map[chat.Status]color.Style{
	chat.StatusActive:   color.New(color.FgGreen, color.OpBold),
	chat.StatusResolved: color.New(color.FgCyan),
	chat.StatusClosed:   color.New(color.FgGray),
}

func paintStatus(s chat.Status) string {
	if style, ok := statusStyles[s]; ok {
		return style.Render(s.String())
	}
	return s.String()
}

func renderBoard(out io.Writer, rows []chat.Activity, now time.Time) {
	table := newTable(out, "Session", "Name", "Topic", "Status", "Last message", "Unread")
	for _, row := range rows {
		unread := ""
		if row.Unread > 0 {
			unread = color.New(color.FgRed, color.OpBold).Render(strconv.Itoa(row.Unread))
		}
		table.Append([]string{
			row.ID.String()[:8],
			row.Name,
			row.Topic,
			paintStatus(row.Status),
			ago(now, row.LastMessageAt),
			unread,
		})
	}
	table.Render()
}

func renderStats(out io.Writer, stats chat.Stats) {
	table := newTable(out, "Total", "Active", "Resolved", "Closed")
	table.Append([]string{
		strconv.Itoa(stats.Total),
		strconv.Itoa(stats.Active),
		strconv.Itoa(stats.Resolved),
		strconv.Itoa(stats.Closed),
	})
	table.Render()
}

func renderHits(out io.Writer, result search.Result) {
	table := newTable(out, "Session", "At", "Sender", "Content", "Score")
	for _, hit := range result.Hits {
		table.Append([]string{
			hit.SessionID.String()[:8],
			hit.CreatedAt.Format(time.DateTime),
			string(hit.Sender),
			hit.Content,
			fmt.Sprintf("%.2f", hit.Score),
		})
	}
	table.Render()
	fmt.Fprintf(out, "%d of %d hits\n", len(result.Hits), result.Total)
}

func renderOnline(out io.Writer, users []client.OnlineUser, now time.Time) {
	table := newTable(out, "User", "Last activity")
	for _, u := range users {
		table.Append([]string{u.UserID, ago(now, u.LastActivity)})
	}
	table.Render()
}

func renderDump(out io.Writer, rows [][]string) {
	table := newTable(out, "Key", "Type", "Detail")
	table.AppendBulk(rows)
	table.Render()
	fmt.Fprintf(out, "%d entries\n", len(rows))
}

func ago(now, t time.Time) string {
	d := now.Sub(t).Round(time.Second)
	switch {
	case d < time.Second:
		return "now"
	case d < time.Hour:
		return d.String() + " ago"
	default:
		return t.Format(time.DateTime)
	}
}
