package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/mattn/go-isatty"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"imgworker/internal/daemon"
	"imgworker/internal/queue"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

const (
	statusLabelWidth = 20
	statusIndent     = "  "
)

var titleCaser = cases.Title(language.English)

func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	statusText := statusKindLabel(kind)
	if message != "" {
		statusText = fmt.Sprintf("[%s] %s", statusText, message)
	} else {
		statusText = fmt.Sprintf("[%s]", statusText)
	}
	base := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, label+":", statusText)
	if colorize {
		if color := statusKindColor(kind); color != "" {
			return color + base + ansiReset
		}
	}
	return base
}

func statusKindLabel(kind statusKind) string {
	switch kind {
	case statusOK:
		return "OK"
	case statusWarn:
		return "WARN"
	case statusError:
		return "ERROR"
	default:
		return "INFO"
	}
}

func statusKindColor(kind statusKind) string {
	switch kind {
	case statusOK:
		return ansiGreen
	case statusWarn:
		return ansiYellow
	case statusError:
		return ansiRed
	case statusInfo:
		return ansiBlue
	default:
		return ""
	}
}

func renderSectionHeader(title string, colorize bool) []string {
	line := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	rule := strings.Repeat("-", len(line))
	if colorize {
		line = ansiBlue + line + ansiReset
		rule = ansiBlue + rule + ansiReset
	}
	return []string{line, rule}
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func renderStatus(w io.Writer, status daemon.Status, colorize bool) {
	printSection(w, "Worker", colorize)
	modeKind := statusOK
	if status.Mode == daemon.ModeWaiting {
		modeKind = statusWarn
	}
	fmt.Fprintln(w, renderStatusLine("Mode", modeKind, titleCaser.String(string(status.Mode)), colorize))
	runningKind := statusOK
	if !status.Running {
		runningKind = statusWarn
	}
	running := yesNo(status.Running)
	if status.PID > 0 {
		running += " (pid " + strconv.Itoa(status.PID) + ")"
	}
	fmt.Fprintln(w, renderStatusLine("Running", runningKind, running, colorize))
	haltKind := statusOK
	if status.Halted {
		haltKind = statusWarn
	}
	fmt.Fprintln(w, renderStatusLine("Halted", haltKind, yesNo(status.Halted), colorize))
	fmt.Fprintln(w, renderStatusLine("Observers", statusInfo, strconv.Itoa(status.Observers), colorize))
	fmt.Fprintln(w, renderStatusLine("Poll interval", statusInfo, status.PollInterval.String(), colorize))
	fmt.Fprintln(w)

	printSection(w, "Settings", colorize)
	fmt.Fprintln(w, renderStatusLine("Image list", settingKind(status.Settings.ImageListURL), status.Settings.ImageListURL, colorize))
	fmt.Fprintln(w, renderStatusLine("Image upload", settingKind(status.Settings.ImageUploadURL), status.Settings.ImageUploadURL, colorize))
	maxFiles := "unlimited"
	if status.Settings.MaxFileUploads > 0 {
		maxFiles = strconv.Itoa(status.Settings.MaxFileUploads)
	}
	fmt.Fprintln(w, renderStatusLine("Max file uploads", statusInfo, maxFiles, colorize))
	fmt.Fprintln(w)

	if len(status.Components) > 0 || len(status.Dependencies) > 0 {
		printSection(w, "Components", colorize)
		for _, health := range status.Components {
			kind := statusOK
			if !health.Ready {
				kind = statusError
			}
			fmt.Fprintln(w, renderStatusLine(health.Name, kind, health.Detail, colorize))
		}
		for _, dep := range status.Dependencies {
			kind, detail := statusOK, dep.Command
			if !dep.Available {
				kind, detail = statusWarn, dep.Detail
			}
			fmt.Fprintln(w, renderStatusLine(dep.Name, kind, detail, colorize))
		}
		fmt.Fprintln(w)
	}

	printSection(w, "Queue", colorize)
	rows := queueRows(status.Queue)
	if len(rows) == 0 {
		fmt.Fprintln(w, "Queue is empty")
		return
	}
	fmt.Fprint(w, renderTable(
		[]string{"Payload", "Queue", "State", "URLs", "Error"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
	))
}

func printSection(w io.Writer, title string, colorize bool) {
	for _, line := range renderSectionHeader(title, colorize) {
		fmt.Fprintln(w, line)
	}
}

func settingKind(value string) statusKind {
	if strings.TrimSpace(value) == "" {
		return statusWarn
	}
	return statusOK
}

func queueRows(views []queue.View) [][]string {
	rows := make([][]string, 0, len(views))
	for _, v := range views {
		rows = append(rows, []string{
			v.Payload.ID,
			queueLabel(v.Queue),
			titleCaser.String(string(v.State)),
			strconv.Itoa(len(v.Payload.URLs)),
			v.Payload.Error,
		})
	}
	return rows
}

func queueLabel(name queue.Name) string {
	switch name {
	case queue.Optimize:
		return "Optimize"
	case queue.Upload:
		return "Upload"
	default:
		return string(name)
	}
}
