package cmd

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/gossipring/cassandra/gossip"
	"github.com/gossipring/cassandra/node"
)

var interactiveCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Start the live cluster-health dashboard",
	Long: `Start an interactive terminal UI showing a running in-process cluster's
gossip membership, ring ownership, and storage footprint.

Keyboard shortcuts:
  C - Start a new node (gossips against every node already running)
  D - Stop a node (shows selection menu)
  DD - Stop the first node
  Q - Quit (stops every node cleanly)

Examples:
  cassandra dashboard`,
	Run: runInteractive,
}

func init() {
	rootCmd.AddCommand(interactiveCmd)
}

// State is the dashboard's input mode.
type State int

const (
	StateNormal State = iota
	StateDeleteSelect
	StateWaitingForSecondD
)

type model struct {
	manager  *node.Manager
	nodes    []*node.Node
	state    State
	selected int
	err      error
	width    int

	numericInput string // buffer for multi-digit delete-mode input
}

func initialModel() model {
	return model{
		manager: node.NewManager(),
		nodes:   []*node.Node{},
		state:   StateNormal,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(tick(), refreshNodes(m.manager))
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(time.Time) tea.Msg {
		return tickMsg{}
	})
}

type tickMsg struct{}

func refreshNodes(manager *node.Manager) tea.Cmd {
	return func() tea.Msg {
		return nodesUpdatedMsg{nodes: manager.GetNodes()}
	}
}

type nodesUpdatedMsg struct {
	nodes []*node.Node
}

type shutdownCompleteMsg struct {
	err error
}

// shutdownNodes stops all nodes and reports when every one has stopped.
func shutdownNodes(manager *node.Manager) tea.Cmd {
	return func() tea.Msg {
		return shutdownCompleteMsg{err: manager.StopAll()}
	}
}

// handleCreateNode starts a new node against the manager.
func (m *model) handleCreateNode() {
	if _, err := m.manager.CreateNode(); err != nil {
		m.err = err
		return
	}
	m.err = nil
	m.nodes = m.manager.GetNodes()
}

// handleDeleteNode stops the node at index.
func (m *model) handleDeleteNode(index int) {
	if err := m.manager.DeleteNode(index); err != nil {
		m.err = err
		return
	}
	m.err = nil
	m.nodes = m.manager.GetNodes()
	m.state = StateNormal
	m.numericInput = ""
}

func (m *model) enterDeleteMode() {
	if len(m.nodes) == 0 {
		m.err = fmt.Errorf("no nodes to stop")
		return
	}
	m.selected = 0
	m.numericInput = ""
	m.state = StateDeleteSelect
}

func (m *model) cancelDeleteMode() {
	m.selected = 0
	m.numericInput = ""
	m.err = nil
	m.state = StateNormal
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tickMsg:
		if m.state == StateWaitingForSecondD {
			m.enterDeleteMode()
		}
		return m, tea.Batch(tick(), refreshNodes(m.manager))

	case nodesUpdatedMsg:
		m.nodes = msg.nodes
		if m.state == StateDeleteSelect && m.selected >= len(m.nodes) {
			m.selected = len(m.nodes) - 1
		}
		return m, nil

	case shutdownCompleteMsg:
		return m, tea.Quit
	}

	return m, nil
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()

	switch key {
	case "q", "Q", "ctrl+c":
		return m, shutdownNodes(m.manager)

	case "c", "C":
		m.handleCreateNode()
		return m, nil

	case "d", "D":
		if m.state == StateWaitingForSecondD {
			if len(m.nodes) > 0 {
				m.handleDeleteNode(0)
			}
			return m, nil
		}
		if len(m.nodes) == 0 {
			m.err = fmt.Errorf("no nodes to stop")
			return m, nil
		}
		m.state = StateWaitingForSecondD
		return m, nil

	case "esc":
		if m.state == StateDeleteSelect || m.state == StateWaitingForSecondD {
			m.cancelDeleteMode()
		}
		return m, nil
	}

	if m.state != StateDeleteSelect {
		if m.state == StateWaitingForSecondD {
			m.enterDeleteMode()
		}
		return m, nil
	}

	switch key {
	case "up", "k":
		if m.selected > 0 {
			m.selected--
		}
	case "down", "j":
		if m.selected < len(m.nodes)-1 {
			m.selected++
		}
	case "enter":
		if m.numericInput != "" {
			if n, err := strconv.Atoi(m.numericInput); err == nil && n >= 1 && n <= len(m.nodes) {
				m.handleDeleteNode(n - 1)
				return m, nil
			}
			m.err = fmt.Errorf("invalid node number: %s", m.numericInput)
			m.numericInput = ""
			return m, nil
		}
		m.handleDeleteNode(m.selected)
	default:
		if len(key) == 1 && key[0] >= '0' && key[0] <= '9' {
			m.numericInput += key
		}
	}
	return m, nil
}

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62")).Padding(1, 2)
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	aliveStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	deadStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Italic(true)
	boxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

func (m model) View() string {
	var s strings.Builder
	s.WriteString(titleStyle.Render("Cluster Dashboard"))
	s.WriteString("\n\n")

	if m.err != nil {
		s.WriteString(errStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		s.WriteString("\n\n")
	}

	if len(m.nodes) == 0 {
		s.WriteString("No nodes running. Press C to start one.\n\n")
	}

	for i, n := range m.nodes {
		s.WriteString(m.renderNodePanel(i, n))
		s.WriteString("\n")
	}

	s.WriteString(dimStyle.Render(m.helpText()))
	return s.String()
}

// renderNodePanel shows one node's gossip membership, ring ownership, and
// storage footprint, the data an operator would pull via `nodetool status`.
func (m model) renderNodePanel(index int, n *node.Node) string {
	cfg := n.Config()
	var body strings.Builder

	header := fmt.Sprintf("[%d] %s (%s)", index+1, cfg.NodeID, cfg.Conn.ListenAddr)
	if m.state == StateDeleteSelect && index == m.selected {
		header = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true).Render("> " + header)
	}
	body.WriteString(header)
	body.WriteString("\n")

	snapshot := n.Gossip().Snapshot()
	endpoints := make([]string, 0, len(snapshot))
	for ep := range snapshot {
		endpoints = append(endpoints, string(ep))
	}
	sort.Strings(endpoints)

	body.WriteString("  gossip:")
	if len(endpoints) == 0 {
		body.WriteString(" (no known endpoints)\n")
	} else {
		body.WriteString("\n")
		for _, ep := range endpoints {
			es := snapshot[gossip.Endpoint(ep)]
			status := deadStyle.Render("down")
			if es.IsAlive {
				status = aliveStyle.Render("up")
			}
			body.WriteString(fmt.Sprintf("    %-22s %s  gen=%d ver=%d states=%d\n",
				ep, status, es.Heartbeat.Generation, es.Heartbeat.Version, len(es.AppStates)))
		}
	}

	tokens := n.Ring().Tokens()
	body.WriteString(fmt.Sprintf("  ring:    %d physical node(s) owning tokens\n", len(tokens)))
	for phyID, toks := range tokens {
		body.WriteString(fmt.Sprintf("    %-22s %d vnode(s)\n", phyID, len(toks)))
	}

	st := n.Storage().Stats()
	body.WriteString(fmt.Sprintf("  storage: %d memtable key(s), %d byte(s), %d sstable(s)\n",
		st.MemtableKeys, st.MemtableSize, st.SSTables))

	width := 70
	if m.width > 4 {
		width = m.width - 4
	}
	return boxStyle.Width(width).Render(strings.TrimRight(body.String(), "\n"))
}

func (m model) helpText() string {
	switch m.state {
	case StateDeleteSelect:
		if m.numericInput != "" {
			return fmt.Sprintf("STOP MODE: node %s, Enter to confirm, Esc to cancel", m.numericInput)
		}
		return fmt.Sprintf("STOP MODE: ↑/↓/j/k or type node number (1-%d), Enter to confirm, Esc to cancel", len(m.nodes))
	case StateWaitingForSecondD:
		return "Press D again to stop the first node, or any other key to pick one"
	default:
		return "C to start a node | D to stop a node (DD = stop first) | Q to quit"
	}
}

func runInteractive(cmd *cobra.Command, args []string) {
	p := tea.NewProgram(initialModel())
	if _, err := p.Run(); err != nil {
		fmt.Printf("Error running dashboard: %v\n", err)
	}
}
