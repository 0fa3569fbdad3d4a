// nbtop: terminal monitor for a running netbricks instance.
// Polls the ops endpoint and renders per-queue counters.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#4FC1FF"))
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#569CD6"))
	rowStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#DCDCAA"))
	errorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#F44747"))
	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#CE9178"))
)

// queueRow is one port queue's counters as scraped from /metrics.
type queueRow struct {
	queue   string
	rx, tx  uint64
	dropped uint64
	aborted uint64
}

type tickMsg time.Time

type scrapeMsg struct {
	rows []queueRow
	err  error
}

type model struct {
	addr     string
	interval time.Duration
	rows     []queueRow
	prev     map[string]queueRow
	rates    map[string][2]uint64
	err      error
}

func (m model) Init() tea.Cmd {
	return tea.Batch(scrape(m.addr), tick(m.interval))
}

func tick(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// scrape pulls the prometheus text format and keeps the netbricks port
// counters.
func scrape(addr string) tea.Cmd {
	return func() tea.Msg {
		resp, err := http.Get("http://" + addr + "/metrics")
		if err != nil {
			return scrapeMsg{err: err}
		}
		defer resp.Body.Close()

		byQueue := map[string]*queueRow{}
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "netbricks_port_") {
				continue
			}
			name, labels, value, ok := parseSample(line)
			if !ok {
				continue
			}
			key := labels["queue"]
			row, found := byQueue[key]
			if !found {
				row = &queueRow{queue: key}
				byQueue[key] = row
			}
			switch name {
			case "netbricks_port_rx_packets_total":
				row.rx = value
			case "netbricks_port_tx_packets_total":
				row.tx = value
			case "netbricks_port_dropped_total":
				row.dropped = value
			case "netbricks_port_aborted_total":
				row.aborted = value
			}
		}

		rows := make([]queueRow, 0, len(byQueue))
		for _, row := range byQueue {
			rows = append(rows, *row)
		}
		sort.Slice(rows, func(i, j int) bool { return rows[i].queue < rows[j].queue })
		return scrapeMsg{rows: rows}
	}
}

// parseSample splits `name{k="v",...} value` into its parts.
func parseSample(line string) (string, map[string]string, uint64, bool) {
	brace := strings.IndexByte(line, '{')
	end := strings.IndexByte(line, '}')
	if brace < 0 || end < brace {
		return "", nil, 0, false
	}
	labels := map[string]string{}
	for _, pair := range strings.Split(line[brace+1:end], ",") {
		k, v, found := strings.Cut(pair, "=")
		if found {
			labels[k] = strings.Trim(v, `"`)
		}
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(line[end+1:]), 64)
	if err != nil {
		return "", nil, 0, false
	}
	return line[:brace], labels, uint64(value), true
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
	case tickMsg:
		return m, tea.Batch(scrape(m.addr), tick(m.interval))
	case scrapeMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		m.rates = map[string][2]uint64{}
		secs := m.interval.Seconds()
		for _, row := range msg.rows {
			if prev, ok := m.prev[row.queue]; ok {
				m.rates[row.queue] = [2]uint64{
					uint64(float64(row.rx-prev.rx) / secs),
					uint64(float64(row.tx-prev.tx) / secs),
				}
			}
		}
		m.prev = map[string]queueRow{}
		for _, row := range msg.rows {
			m.prev[row.queue] = row
		}
		m.rows = msg.rows
	}
	return m, nil
}

func (m model) View() string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render("netbricks " + m.addr))
	sb.WriteString("\n\n")
	if m.err != nil {
		sb.WriteString(errorStyle.Render("scrape failed: " + m.err.Error()))
		sb.WriteString("\n")
	}
	sb.WriteString(headerStyle.Render(fmt.Sprintf("%-28s %12s %12s %10s %10s %10s %10s",
		"QUEUE", "RX", "TX", "RX/s", "TX/s", "DROP", "ABORT")))
	sb.WriteString("\n")
	for _, row := range m.rows {
		rate := m.rates[row.queue]
		sb.WriteString(rowStyle.Render(fmt.Sprintf("%-28s %12d %12d %10d %10d %10d %10d",
			row.queue, row.rx, row.tx, rate[0], rate[1], row.dropped, row.aborted)))
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
	sb.WriteString(helpStyle.Render("q to quit"))
	return sb.String()
}

func main() {
	addr := flag.String("addr", "127.0.0.1:9000", "ops endpoint address of the netbricks instance")
	interval := flag.Duration("interval", time.Second, "poll interval")
	flag.Parse()

	if !term.IsTerminal(int(os.Stdout.Fd())) {
		fmt.Fprintln(os.Stderr, "nbtop needs a terminal")
		os.Exit(1)
	}

	m := model{addr: *addr, interval: *interval, prev: map[string]queueRow{}}
	p := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
