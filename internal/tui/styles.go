package tui

import "github.com/charmbracelet/lipgloss"

var (
	docStyle       = lipgloss.NewStyle().Margin(1, 2)
	titleStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true)
	identityStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	sectionStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("86")).Bold(true).MarginTop(1)
	selectedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	itemStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	dirStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	descStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	crumbStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	crumbHereStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("252")).Bold(true)
	favoriteStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	helpStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	tabStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("244")).Padding(0, 1)
	activeTabStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true).Underline(true).Padding(0, 1)
	boxStyle       = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("238")).Padding(0, 1)
)
