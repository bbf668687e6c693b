package console

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ameet2r/workout/internal/models"
	"github.com/ameet2r/workout/internal/sensor"
	"github.com/ameet2r/workout/internal/timer"
)

func formatWeight(w float64) string {
	return strconv.FormatFloat(w, 'f', -1, 64)
}

func displayName(st sensor.Status) string {
	if st.DeviceName != "" {
		return st.DeviceName
	}
	return st.Address
}

func formatSensor(st sensor.Status) string {
	switch st.State {
	case sensor.StateConnected:
		text := fmt.Sprintf("[green]●[white] %s", displayName(st))
		switch {
		case st.Stale:
			text += "  [red]no data[white]"
		case st.HasCurrent:
			text += fmt.Sprintf("  [red]♥[white] [yellow]%d[white] bpm", st.Current)
		}
		if st.Location != "" {
			text += "  (" + st.Location + ")"
		}
		return text
	case sensor.StateConnecting:
		return "[yellow]●[white] connecting..."
	case sensor.StateUnsupported:
		return "[red]●[white] bluetooth unavailable"
	}
	if st.LastError != nil {
		return "[red]●[white] " + sensor.UserMessage(st.LastError)
	}
	return "[gray]●[white] not connected"
}

func formatTimer(st timer.State) string {
	switch st.Status {
	case timer.StatusRunning:
		return fmt.Sprintf("[yellow]timer %d  %d:%02d[white]", st.TimerIndex+1,
			st.RemainingSeconds/60, st.RemainingSeconds%60)
	case timer.StatusCompleted:
		return fmt.Sprintf("[green]timer %d done[white]", st.TimerIndex+1)
	case timer.StatusStopped:
		return fmt.Sprintf("timer %d stopped", st.TimerIndex+1)
	}
	return "timer idle"
}

// renderStatus is the header panel.
func renderStatus(snap Snapshot) string {
	var b strings.Builder
	if snap.SessionID == "" {
		b.WriteString("  [yellow]No session open[white]\n")
	} else {
		title := snap.SessionID
		if snap.Name != "" {
			title = snap.Name + " (" + snap.SessionID + ")"
		}
		fmt.Fprintf(&b, "  [yellow]%s[white]", title)
		if snap.Finished {
			b.WriteString("  [green]finished[white]")
		}
		b.WriteString("\n")
		fmt.Fprintf(&b, "  %d sets  %d reps  volume %s  |  %s  |  %d HR readings\n",
			snap.Totals.Sets, snap.Totals.Reps, formatWeight(snap.Totals.Volume),
			formatTimer(snap.Timer), snap.Readings)
	}
	fmt.Fprintf(&b, "  HR %s\n", formatSensor(snap.Sensor))
	return b.String()
}

// renderExercises lists every exercise with its planned targets and logged
// sets. The current exercise is marked and shows the pre-filled inputs.
func renderExercises(snap Snapshot) string {
	if len(snap.Exercises) == 0 {
		return "\n  No exercises.\n"
	}
	var b strings.Builder
	for i, ex := range snap.Exercises {
		marker := " "
		if i == snap.Current {
			marker = "[yellow]>[white]"
		}
		fmt.Fprintf(&b, "%s %d. %s  %s\n", marker, i+1, ex.ExerciseVersionID, plannedText(ex))
		for j, set := range ex.Sets {
			fmt.Fprintf(&b, "      %d) %s\n", j+1, setText(set))
		}
		if i != snap.Current {
			continue
		}
		if len(ex.Timers) > 0 {
			parts := make([]string, len(ex.Timers))
			for k, t := range ex.Timers {
				parts[k] = fmt.Sprintf("%d:%ds", k+1, t.DurationSeconds)
			}
			fmt.Fprintf(&b, "      timers %s\n", strings.Join(parts, " "))
		}
		if len(snap.Pending) > 0 {
			fmt.Fprintf(&b, "      %d timer run(s) waiting for the next set\n", len(snap.Pending))
		}
		fmt.Fprintf(&b, "      [green]next:[white] %s\n", inputText(snap))
	}
	return b.String()
}

func plannedText(ex models.SessionExercise) string {
	var parts []string
	if ex.PlannedSets != nil {
		parts = append(parts, fmt.Sprintf("%d sets", *ex.PlannedSets))
	}
	if ex.PlannedReps != nil {
		parts = append(parts, "x "+*ex.PlannedReps)
	}
	switch {
	case ex.Bodyweight:
		parts = append(parts, "bodyweight")
	case ex.PlannedWeight != nil:
		parts = append(parts, "@ "+formatWeight(*ex.PlannedWeight))
	}
	if len(parts) == 0 {
		return ""
	}
	return "[gray]" + strings.Join(parts, " ") + "[white]"
}

func setText(set models.SetRecord) string {
	text := fmt.Sprintf("%d reps", set.Reps)
	if set.Weight != nil {
		text += " @ " + formatWeight(*set.Weight)
	}
	if set.RPE != nil {
		text += fmt.Sprintf("  RPE %d", *set.RPE)
	}
	for _, run := range set.TimerRuns {
		text += fmt.Sprintf("  [gray]t%d %d/%ds[white]", run.TimerIndex+1, run.ActualSeconds, run.PlannedSeconds)
	}
	return text
}

func inputText(snap Snapshot) string {
	in := snap.Inputs
	text := "reps "
	if in.Reps != nil {
		text += strconv.Itoa(*in.Reps)
	} else {
		text += "?"
	}
	if in.Weight != nil {
		text += " @ " + formatWeight(*in.Weight)
	}
	if snap.OneRepMaxMode {
		text += "  [yellow]1RM[white]"
		if orm := snap.OneRepMax; orm != nil {
			if orm.Estimated != nil {
				text += " est " + strconv.FormatFloat(*orm.Estimated, 'f', 1, 64)
			}
			if orm.Actual != nil {
				text += " best " + formatWeight(*orm.Actual)
			}
		}
	}
	return text
}
