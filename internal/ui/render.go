package ui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/five82/feedline/internal/feed"
)

var errDiffMismatch = errors.New("diff result does not match published items")

const (
	headerLines  = 1
	footerLines  = 2
	authorWidth  = 14
	timeWidth    = 4
	selectMarker = "▌ "
)

// listHeight is the number of rows available to the post list.
func (m Model) listHeight() int {
	h := m.height - headerLines - footerLines
	if m.showBanner() {
		h--
	}
	if m.toast != "" {
		h--
	}
	return max(h, 0)
}

// showBanner reports whether a refresh error is shown above existing content.
func (m Model) showBanner() bool {
	return m.state.Error != "" && len(m.items) > 0
}

func (m Model) renderMain() string {
	var b strings.Builder

	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	if m.showBanner() {
		b.WriteString(m.theme.Styles().Banner.Width(m.width).Render(
			truncate(m.state.Error+"  (r to retry)", m.width-2)))
		b.WriteString("\n")
	}
	b.WriteString(m.renderBody())
	b.WriteString("\n")
	if m.toast != "" {
		b.WriteString(m.theme.Styles().Toast.MaxWidth(m.width).Render(truncate(m.toast, m.width-2)))
		b.WriteString("\n")
	}
	b.WriteString(m.renderMoreLine())
	b.WriteString("\n")
	b.WriteString(m.help.View(m.keys))

	return b.String()
}

// renderHeader renders the top status bar.
func (m Model) renderHeader() string {
	styles := m.theme.Styles().WithBackground(m.theme.Surface)
	bg := NewBgStyle(m.theme.Surface)

	parts := []string{bg.Render("feedline", styles.Logo)}
	if m.timelineName != "" {
		parts = append(parts, bg.Render(m.timelineName, styles.AccentText))
	}
	if m.hasState {
		parts = append(parts, bg.Render(pluralize(len(m.items), "post", "posts"), styles.Text))
	}
	switch {
	case m.state.Refreshing:
		parts = append(parts, bg.Render(m.spinner.View()+" refreshing", styles.InfoText))
	case m.state.Loading:
		parts = append(parts, bg.Render(m.spinner.View()+" loading", styles.InfoText))
	}
	if !m.lastUpdated.IsZero() {
		parts = append(parts, bg.Render("updated "+m.lastUpdated.Format("15:04:05"), styles.MutedText))
	}

	content := bg.Spaces(1) + bg.Join(parts, "  ·  ")
	return bg.FillLine(content, m.width)
}

// renderBody renders the list or, when there is nothing to list, the
// full-screen loading, error or empty state.
func (m Model) renderBody() string {
	height := m.listHeight()
	styles := m.theme.Styles()

	if len(m.items) == 0 {
		var msg string
		switch {
		case !m.hasState || m.state.Loading:
			msg = m.spinner.View() + " " + styles.MutedText.Render("Loading timeline…")
		case m.state.Error != "":
			msg = styles.DangerText.Render(m.state.Error) + "\n\n" + styles.MutedText.Render("Press r to retry")
		default:
			msg = styles.MutedText.Render("Nothing here yet") + "\n\n" + styles.FaintText.Render("Press r to refresh")
		}
		return lipgloss.Place(m.width, height, lipgloss.Center, lipgloss.Center, msg)
	}

	start, end := m.visibleRange()
	rows := make([]string, 0, height)
	for i := start; i < end; i++ {
		rows = append(rows, m.renderRow(m.items[i], i == m.selected))
	}
	for len(rows) < height {
		rows = append(rows, "")
	}
	return strings.Join(rows, "\n")
}

// visibleRange returns the window of items to draw, keeping the selection
// inside it even if the layout changed since the last scroll.
func (m Model) visibleRange() (int, int) {
	height := m.listHeight()
	offset := m.offset
	if m.selected >= offset+height {
		offset = m.selected - height + 1
	}
	if m.selected < offset {
		offset = m.selected
	}
	offset = max(min(offset, len(m.items)-height), 0)
	return offset, min(offset+height, len(m.items))
}

func (m Model) renderRow(item feed.Item, selected bool) string {
	styles := m.theme.Styles()

	marker := "  "
	if selected {
		marker = selectMarker
	}
	author := padRight(truncate(item.Author, authorWidth), authorWidth)
	stats := formatStats(item)
	stamp := ""
	if m.prefs.ShowTimestamps {
		stamp = padLeft(m.age(item), timeWidth)
	}

	fixed := lipgloss.Width(marker) + authorWidth + 2 + lipgloss.Width(stats) + 2 + lipgloss.Width(stamp)
	textWidth := max(m.width-fixed-1, 0)
	text := padRight(truncate(singleLine(item.Text), textWidth), textWidth)

	if selected {
		line := marker + author + "  " + text + "  " + stats + " " + stamp
		return styles.Selected.Width(m.width).Render(line)
	}

	likes := styles.MutedText
	if item.Liked {
		likes = styles.LikedText
	}
	return marker +
		styles.AccentText.Render(author) + "  " +
		styles.Text.Render(text) + "  " +
		likes.Render(stats) + " " +
		styles.FaintText.Render(stamp)
}

func (m Model) age(item feed.Item) string {
	created := item.ParsedCreatedAt()
	if created.IsZero() {
		return ""
	}
	return humanizeDuration(m.now().Sub(created))
}

// renderMoreLine renders the pagination status under the list.
func (m Model) renderMoreLine() string {
	styles := m.theme.Styles()
	st := m.state
	switch {
	case !m.hasState || len(m.items) == 0:
		return ""
	case st.MoreLoading:
		return " " + m.spinner.View() + " " + styles.MutedText.Render("Loading more…")
	case st.MoreError != "":
		return " " + styles.DangerText.Render(truncate("Couldn't load more: "+st.MoreError, m.width-16)) +
			styles.MutedText.Render("  (m to retry)")
	case !st.MoreAvailable:
		return " " + styles.FaintText.Render("End of timeline")
	default:
		return ""
	}
}

// renderHelp renders the help overlay.
func (m Model) renderHelp() string {
	styles := m.theme.Styles()

	var b strings.Builder
	b.WriteString(styles.Text.Bold(true).Render("Keyboard Shortcuts"))
	b.WriteString("\n")
	b.WriteString(styles.FaintText.Render(strings.Repeat("─", 30)))
	b.WriteString("\n\n")
	b.WriteString(m.help.View(m.keys))

	modal := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(m.theme.Accent)).
		Padding(1, 2).
		Render(b.String())

	return lipgloss.Place(
		m.width,
		m.height,
		lipgloss.Center,
		lipgloss.Center,
		modal,
		lipgloss.WithWhitespaceChars(" "),
		lipgloss.WithWhitespaceForeground(lipgloss.Color(m.theme.Background)),
	)
}

func formatStats(item feed.Item) string {
	heart := "♡"
	if item.Liked {
		heart = "♥"
	}
	return fmt.Sprintf("%s %-3s ↩ %-3s ⟳ %-3s",
		heart, compactCount(item.LikeCount), compactCount(item.CommentCount), compactCount(item.ReshareCount))
}

func pluralize(n int, one, many string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, one)
	}
	return fmt.Sprintf("%d %s", n, many)
}
