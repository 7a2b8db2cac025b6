package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/dgnsrekt/atk/internal/client"
	"github.com/dgnsrekt/atk/internal/track"
)

// daemonDo sends one command to the running daemon and unwraps the response.
func daemonDo(cmd string, args map[string]interface{}) (map[string]interface{}, error) {
	c := client.New(cfg.Paths.RuntimeDir)
	resp, err := c.Command(cmd, args)
	if err != nil {
		if errors.Is(err, client.ErrDaemonNotRunning) {
			return nil, fmt.Errorf("daemon is not running, start it with %s", keyword("atk daemon"))
		}
		return nil, err
	}
	if !resp.OK {
		return nil, fmt.Errorf("%s: %s", resp.Error.Code, resp.Error.Message)
	}
	return resp.Data, nil
}

// expandPath resolves ~ and makes the path absolute so the daemon can open
// it regardless of its own working directory.
func expandPath(path string) (string, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return "", fmt.Errorf("unable to expand path: %w", err)
	}
	abs, err := filepath.Abs(expanded)
	if err != nil {
		return "", fmt.Errorf("unable to get absolute path: %w", err)
	}
	return abs, nil
}

// parseSeek turns "90", "1:30" or "+15"/"-15" into seconds plus a relative
// flag.
func parseSeek(arg string) (secs float64, relative bool, err error) {
	relative = strings.HasPrefix(arg, "+") || strings.HasPrefix(arg, "-")
	sign := 1.0
	if relative {
		if arg[0] == '-' {
			sign = -1.0
		}
		arg = arg[1:]
	}

	if before, after, found := strings.Cut(arg, ":"); found {
		mins, merr := strconv.Atoi(before)
		rest, serr := strconv.ParseFloat(after, 64)
		if merr != nil || serr != nil || rest < 0 {
			return 0, false, fmt.Errorf("invalid position %q", arg)
		}
		return sign * (float64(mins)*60 + rest), relative, nil
	}

	secs, err = strconv.ParseFloat(arg, 64)
	if err != nil {
		return 0, false, fmt.Errorf("invalid position %q", arg)
	}
	return sign * secs, relative, nil
}

// clock renders seconds as m:ss for display.
func clock(secs float64) string {
	if secs < 0 {
		secs = 0
	}
	total := int(secs)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

func terminalWidth() int {
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		return w
	}
	return 80
}

var playCmd = &cobra.Command{
	Use:   "play [FILE]",
	Short: "Start or resume playback",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		reqArgs := map[string]interface{}{}
		if len(args) == 1 {
			path, err := expandPath(args[0])
			if err != nil {
				return err
			}
			reqArgs["file"] = path
		}
		data, err := daemonDo("play", reqArgs)
		if err != nil {
			return err
		}
		fmt.Println(data["state"])
		return nil
	},
}

var pauseCmd = &cobra.Command{
	Use:   "pause",
	Short: "Pause playback",
	Args:  cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		_, err := daemonDo("pause", nil)
		return err
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop playback and rewind",
	Args:  cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		_, err := daemonDo("stop", nil)
		return err
	},
}

var nextCmd = &cobra.Command{
	Use:   "next",
	Short: "Skip to the next track",
	Args:  cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		data, err := daemonDo("next", nil)
		if err != nil {
			return err
		}
		if advanced, _ := data["advanced"].(bool); !advanced {
			fmt.Println(subtle("end of queue"))
		}
		return nil
	},
}

var prevCmd = &cobra.Command{
	Use:   "prev",
	Short: "Go back to the previous track",
	Args:  cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		data, err := daemonDo("prev", nil)
		if err != nil {
			return err
		}
		if advanced, _ := data["advanced"].(bool); !advanced {
			fmt.Println(subtle("start of queue"))
		}
		return nil
	},
}

var seekCmd = &cobra.Command{
	Use:     "seek POSITION",
	Short:   "Seek within the current track",
	Example: "  atk seek 90\n  atk seek 1:30\n  atk seek +15\n  atk seek -15",
	Args:    cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		secs, relative, err := parseSeek(args[0])
		if err != nil {
			return err
		}
		data, err := daemonDo("seek", map[string]interface{}{
			"pos":      secs,
			"relative": relative,
		})
		if err != nil {
			return err
		}
		fmt.Println(clock(data["position"].(float64)))
		return nil
	},
}

var volumeCmd = &cobra.Command{
	Use:   "volume LEVEL",
	Short: "Set the volume (0.0 to 1.0)",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		level, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return fmt.Errorf("invalid volume %q", args[0])
		}
		data, err := daemonDo("volume", map[string]interface{}{"level": level})
		if err != nil {
			return err
		}
		fmt.Printf("volume %s\n", humanize.Ftoa(data["volume"].(float64)))
		return nil
	},
}

var rateMode string

var rateCmd = &cobra.Command{
	Use:   "rate FACTOR",
	Short: "Set the playback rate (0.25 to 4.0)",
	Long: paragraph("\nSet the playback rate. In " + keyword("stretch") + " mode the pitch is preserved; in " +
		keyword("tape") + " mode pitch follows the rate like varispeed tape."),
	Args: cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		factor, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return fmt.Errorf("invalid rate %q", args[0])
		}
		reqArgs := map[string]interface{}{"factor": factor}
		if rateMode != "" {
			reqArgs["mode"] = rateMode
		}
		data, err := daemonDo("rate", reqArgs)
		if err != nil {
			return err
		}
		fmt.Printf("%sx (%s)\n", humanize.Ftoa(data["rate"].(float64)), data["mode"])
		return nil
	},
}

var pitchCmd = &cobra.Command{
	Use:   "pitch SEMITONES",
	Short: "Shift the pitch (-12 to +12 semitones)",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		semitones, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return fmt.Errorf("invalid pitch %q", args[0])
		}
		data, err := daemonDo("pitch", map[string]interface{}{"semitones": semitones})
		if err != nil {
			return err
		}
		fmt.Printf("%+g st\n", data["pitch"].(float64))
		return nil
	},
}

var fadeCmd = &cobra.Command{
	Use:   "fade TARGET SECONDS",
	Short: "Fade the volume to a target level",
	Args:  cobra.ExactArgs(2),
	RunE: func(_ *cobra.Command, args []string) error {
		target, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return fmt.Errorf("invalid target %q", args[0])
		}
		secs, err := strconv.ParseFloat(args[1], 64)
		if err != nil || secs < 0 {
			return fmt.Errorf("invalid duration %q", args[1])
		}
		_, err = daemonDo("fade", map[string]interface{}{
			"to":       target,
			"duration": secs,
		})
		return err
	},
}

var addCmd = &cobra.Command{
	Use:   "add FILE...",
	Short: "Append tracks to the queue",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		for _, arg := range args {
			path, err := expandPath(arg)
			if err != nil {
				return err
			}
			data, err := daemonDo("add", map[string]interface{}{"uri": path})
			if err != nil {
				return err
			}
			fmt.Printf("%s %v\n", subtle("queued at"), data["index"])
		}
		return nil
	},
}

var removeCmd = &cobra.Command{
	Use:   "remove INDEX",
	Short: "Remove a track from the queue",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		index, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid index %q", args[0])
		}
		_, err = daemonDo("remove", map[string]interface{}{"index": index})
		return err
	},
}

var moveCmd = &cobra.Command{
	Use:   "move FROM TO",
	Short: "Move a queue entry to a new position",
	Args:  cobra.ExactArgs(2),
	RunE: func(_ *cobra.Command, args []string) error {
		from, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid index %q", args[0])
		}
		to, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid index %q", args[1])
		}
		_, err = daemonDo("move", map[string]interface{}{"from": from, "to": to})
		return err
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear the queue",
	Args:  cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		_, err := daemonDo("clear", nil)
		return err
	},
}

var jumpCmd = &cobra.Command{
	Use:   "jump INDEX",
	Short: "Jump to a queue entry and play it",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		index, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid index %q", args[0])
		}
		_, err = daemonDo("jump", map[string]interface{}{"index": index})
		return err
	},
}

var shuffleCmd = &cobra.Command{
	Use:       "shuffle on|off",
	Short:     "Enable or disable shuffle",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"on", "off"},
	RunE: func(_ *cobra.Command, args []string) error {
		var enabled bool
		switch args[0] {
		case "on":
			enabled = true
		case "off":
			enabled = false
		default:
			return fmt.Errorf("shuffle takes %s or %s", keyword("on"), keyword("off"))
		}
		_, err := daemonDo("shuffle", map[string]interface{}{"enabled": enabled})
		return err
	},
}

var repeatCmd = &cobra.Command{
	Use:       "repeat none|track|queue",
	Short:     "Set the repeat mode",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"none", "track", "queue"},
	RunE: func(_ *cobra.Command, args []string) error {
		_, err := daemonDo("repeat", map[string]interface{}{"mode": args[0]})
		return err
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show playback status",
	Args:  cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		data, err := daemonDo("status", nil)
		if err != nil {
			return err
		}

		state, _ := data["state"].(string)
		fmt.Println(keyword(state))
		if tr, ok := data["track"].(map[string]interface{}); ok {
			title, _ := tr["title"].(string)
			if title == "" {
				title, _ = tr["uri"].(string)
			}
			fmt.Println(title)
			pos, _ := data["position"].(float64)
			dur, _ := data["duration"].(float64)
			fmt.Printf("%s / %s\n", clock(pos), clock(dur))
		}

		volume, _ := data["volume"].(float64)
		rate, _ := data["rate"].(float64)
		pitch, _ := data["pitch"].(float64)
		fmt.Println(subtle(fmt.Sprintf("volume %s  rate %sx (%v)  pitch %+g st",
			humanize.Ftoa(volume), humanize.Ftoa(rate), data["mode"], pitch)))

		qlen, _ := data["queue_length"].(float64)
		qpos, _ := data["queue_position"].(float64)
		if qlen > 0 {
			fmt.Println(subtle(fmt.Sprintf("track %d of %d  shuffle %v  repeat %v",
				int(qpos)+1, int(qlen), data["shuffle"], data["repeat"])))
		}
		return nil
	},
}

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "List the queue",
	Args:  cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		data, err := daemonDo("queue", nil)
		if err != nil {
			return err
		}

		rawTracks, _ := data["tracks"].([]interface{})
		if len(rawTracks) == 0 {
			fmt.Println(subtle("queue is empty"))
			return nil
		}
		current := -1
		if c, ok := data["current_index"].(float64); ok {
			current = int(c)
		}

		width := terminalWidth()
		lines := lo.Map(rawTracks, func(raw interface{}, i int) string {
			tr, _ := raw.(map[string]interface{})
			label, _ := tr["title"].(string)
			if label == "" {
				label, _ = tr["uri"].(string)
			}
			marker := "  "
			if i == current {
				marker = keyword("▸ ")
			}
			line := fmt.Sprintf("%s%2d  %s", marker, i, label)
			if dur, ok := tr["duration"].(float64); ok && dur > 0 {
				line += subtle("  " + clock(dur))
			}
			if w := len([]rune(line)); w > width {
				line = string([]rune(line)[:width])
			}
			return line
		})
		fmt.Println(strings.Join(lines, "\n"))
		return nil
	},
}

var infoCmd = &cobra.Command{
	Use:   "info [INDEX]",
	Short: "Show track metadata",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		reqArgs := map[string]interface{}{}
		if len(args) == 1 {
			index, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid index %q", args[0])
			}
			reqArgs["index"] = index
		}
		data, err := daemonDo("info", reqArgs)
		if err != nil {
			return err
		}

		tr, _ := data["track"].(map[string]interface{})
		var info track.Info
		info.URI, _ = tr["uri"].(string)
		info.Title, _ = tr["title"].(string)
		info.Artist, _ = tr["artist"].(string)
		info.Duration, _ = tr["duration"].(float64)

		fmt.Println(info.URI)
		if info.Title != "" {
			fmt.Println(info.Title)
		}
		if info.Artist != "" {
			fmt.Println(subtle(info.Artist))
		}
		if info.Duration > 0 {
			fmt.Println(subtle(clock(info.Duration)))
		}
		return nil
	},
}

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List audio output devices",
	Args:  cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		data, err := daemonDo("devices", nil)
		if err != nil {
			return err
		}
		devices, _ := data["devices"].([]interface{})
		for _, d := range devices {
			fmt.Println(d)
		}
		return nil
	},
}

var saveCmd = &cobra.Command{
	Use:   "save [FILE]",
	Short: "Save the session to disk",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		reqArgs := map[string]interface{}{}
		if len(args) == 1 {
			path, err := expandPath(args[0])
			if err != nil {
				return err
			}
			reqArgs["path"] = path
		}
		data, err := daemonDo("save", reqArgs)
		if err != nil {
			return err
		}
		fmt.Println(subtle(fmt.Sprintf("saved to %v", data["path"])))
		return nil
	},
}

var loadCmd = &cobra.Command{
	Use:   "load [FILE]",
	Short: "Load a saved session",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		reqArgs := map[string]interface{}{}
		if len(args) == 1 {
			path, err := expandPath(args[0])
			if err != nil {
				return err
			}
			reqArgs["path"] = path
		}
		_, err := daemonDo("load", reqArgs)
		return err
	},
}

func init() {
	rateCmd.Flags().StringVarP(&rateMode, "mode", "m", "", "rate mode: stretch or tape")
}
