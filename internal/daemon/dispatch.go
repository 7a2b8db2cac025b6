package daemon

import (
	"errors"
	"fmt"
	"time"

	"github.com/dgnsrekt/atk/internal/audio"
	"github.com/dgnsrekt/atk/internal/dsp"
	"github.com/dgnsrekt/atk/internal/protocol"
	"github.com/dgnsrekt/atk/internal/queue"
	"github.com/dgnsrekt/atk/internal/session"
	"github.com/dgnsrekt/atk/internal/source"
)

// command is the closed set of operations the daemon accepts. Dispatch is an
// exhaustive switch over this enum; an unlisted name can only ever produce
// UNKNOWN_COMMAND.
type command int

const (
	cmdUnknown command = iota
	cmdPlay
	cmdPause
	cmdStop
	cmdNext
	cmdPrev
	cmdSeek
	cmdVolume
	cmdRate
	cmdPitch
	cmdFade
	cmdAdd
	cmdRemove
	cmdMove
	cmdClear
	cmdJump
	cmdShuffle
	cmdRepeat
	cmdQueue
	cmdStatus
	cmdInfo
	cmdDevices
	cmdSave
	cmdLoad
	cmdSubscribe
	cmdUnsubscribe
	cmdPing
)

func parseCommand(s string) command {
	switch s {
	case "play":
		return cmdPlay
	case "pause":
		return cmdPause
	case "stop":
		return cmdStop
	case "next":
		return cmdNext
	case "prev":
		return cmdPrev
	case "seek":
		return cmdSeek
	case "volume":
		return cmdVolume
	case "rate":
		return cmdRate
	case "pitch":
		return cmdPitch
	case "fade":
		return cmdFade
	case "add":
		return cmdAdd
	case "remove":
		return cmdRemove
	case "move":
		return cmdMove
	case "clear":
		return cmdClear
	case "jump":
		return cmdJump
	case "shuffle":
		return cmdShuffle
	case "repeat":
		return cmdRepeat
	case "queue":
		return cmdQueue
	case "status":
		return cmdStatus
	case "info":
		return cmdInfo
	case "devices":
		return cmdDevices
	case "save":
		return cmdSave
	case "load":
		return cmdLoad
	case "subscribe":
		return cmdSubscribe
	case "unsubscribe":
		return cmdUnsubscribe
	case "ping":
		return cmdPing
	default:
		return cmdUnknown
	}
}

// dispatch maps one request to exactly one session operation and serializes
// the outcome. The session never sees wire messages.
func (d *Daemon) dispatch(req protocol.Request) protocol.Response {
	args := arguments(req.Args)

	switch parseCommand(req.Cmd) {
	case cmdPlay:
		uri, _ := args.str("file")
		if err := d.sess.Play(uri); err != nil {
			return failure(req.ID, err)
		}
		return protocol.Success(req.ID, map[string]interface{}{"state": d.sess.Status().State})

	case cmdPause:
		d.sess.Pause()
		return protocol.Success(req.ID, map[string]interface{}{"state": d.sess.Status().State})

	case cmdStop:
		d.sess.Stop()
		return protocol.Success(req.ID, map[string]interface{}{"state": d.sess.Status().State})

	case cmdNext:
		idx, ok := d.sess.Next()
		return protocol.Success(req.ID, map[string]interface{}{
			"queue_position": idx,
			"advanced":       ok,
		})

	case cmdPrev:
		idx, ok := d.sess.Prev()
		return protocol.Success(req.ID, map[string]interface{}{
			"queue_position": idx,
			"advanced":       ok,
		})

	case cmdSeek:
		secs, relative, err := args.seekTarget("pos")
		if err != nil {
			return invalidArgs(req.ID, err)
		}
		applied := d.sess.Seek(secondsToDuration(secs), relative)
		return protocol.Success(req.ID, map[string]interface{}{"position": applied.Seconds()})

	case cmdVolume:
		level, err := args.float("level")
		if err != nil {
			return invalidArgs(req.ID, err)
		}
		return protocol.Success(req.ID, map[string]interface{}{"volume": d.sess.SetVolume(level)})

	case cmdRate:
		factor, err := args.float("factor")
		if err != nil {
			return invalidArgs(req.ID, err)
		}
		mode := d.sess.Status().Mode
		if s, ok := args.str("mode"); ok {
			mode = s
		}
		parsed, ok := dsp.ParseMode(mode)
		if !ok {
			return invalidArgs(req.ID, fmt.Errorf("unknown rate mode %q", mode))
		}
		applied := d.sess.SetRate(factor, parsed)
		return protocol.Success(req.ID, map[string]interface{}{
			"rate": applied,
			"mode": parsed.String(),
		})

	case cmdPitch:
		semitones, err := args.float("semitones")
		if err != nil {
			return invalidArgs(req.ID, err)
		}
		return protocol.Success(req.ID, map[string]interface{}{"pitch": d.sess.SetPitch(semitones)})

	case cmdFade:
		target, err := args.float("to")
		if err != nil {
			return invalidArgs(req.ID, err)
		}
		secs, err := args.float("duration")
		if err != nil {
			return invalidArgs(req.ID, err)
		}
		d.sess.Fade(target, secondsToDuration(secs))
		return protocol.Success(req.ID, map[string]interface{}{
			"fading_to": target,
			"duration":  secs,
		})

	case cmdAdd:
		uri, ok := args.str("uri")
		if !ok {
			return invalidArgs(req.ID, errors.New("missing uri"))
		}
		idx, err := d.sess.Add(uri)
		if err != nil {
			return failure(req.ID, err)
		}
		return protocol.Success(req.ID, map[string]interface{}{"index": idx})

	case cmdRemove:
		idx, err := args.integer("index")
		if err != nil {
			return invalidArgs(req.ID, err)
		}
		removed, err := d.sess.Remove(idx)
		if err != nil {
			return failure(req.ID, err)
		}
		return protocol.Success(req.ID, map[string]interface{}{"removed": removed})

	case cmdMove:
		from, err := args.integer("from")
		if err != nil {
			return invalidArgs(req.ID, err)
		}
		to, err := args.integer("to")
		if err != nil {
			return invalidArgs(req.ID, err)
		}
		if err := d.sess.Move(from, to); err != nil {
			return failure(req.ID, err)
		}
		return protocol.Success(req.ID, nil)

	case cmdClear:
		d.sess.Clear()
		return protocol.Success(req.ID, map[string]interface{}{"cleared": true})

	case cmdJump:
		idx, err := args.integer("index")
		if err != nil {
			return invalidArgs(req.ID, err)
		}
		if err := d.sess.Jump(idx); err != nil {
			return failure(req.ID, err)
		}
		return protocol.Success(req.ID, map[string]interface{}{"queue_position": idx})

	case cmdShuffle:
		on, err := args.boolean("enabled")
		if err != nil {
			return invalidArgs(req.ID, err)
		}
		d.sess.SetShuffle(on)
		return protocol.Success(req.ID, map[string]interface{}{"shuffle": on})

	case cmdRepeat:
		modeStr, ok := args.str("mode")
		if !ok {
			return invalidArgs(req.ID, errors.New("missing mode"))
		}
		mode, ok := queue.ParseRepeat(modeStr)
		if !ok {
			return invalidArgs(req.ID, fmt.Errorf("unknown repeat mode %q", modeStr))
		}
		d.sess.SetRepeat(mode)
		return protocol.Success(req.ID, map[string]interface{}{"repeat": mode.String()})

	case cmdQueue:
		tracks, current := d.sess.Queue()
		return protocol.Success(req.ID, map[string]interface{}{
			"tracks":        tracks,
			"current_index": current,
		})

	case cmdStatus:
		return protocol.Success(req.ID, statusData(d.sess.Status()))

	case cmdInfo:
		idx := -1
		if n, err := args.integer("index"); err == nil {
			idx = n
		}
		info, err := d.sess.TrackAt(idx)
		if err != nil {
			return failure(req.ID, err)
		}
		return protocol.Success(req.ID, map[string]interface{}{"track": info})

	case cmdDevices:
		return protocol.Success(req.ID, map[string]interface{}{"devices": d.opener.Devices()})

	case cmdSave:
		path := d.cfg.SessionFile()
		if p, ok := args.str("path"); ok {
			path = p
		}
		if err := d.sess.Save(path); err != nil {
			return failure(req.ID, err)
		}
		return protocol.Success(req.ID, map[string]interface{}{"path": path})

	case cmdLoad:
		path := d.cfg.SessionFile()
		if p, ok := args.str("path"); ok {
			path = p
		}
		if err := d.sess.Restore(path); err != nil {
			return failure(req.ID, err)
		}
		return protocol.Success(req.ID, map[string]interface{}{"path": path})

	case cmdSubscribe:
		d.server.AddSubscriber()
		return protocol.Success(req.ID, map[string]interface{}{"subscribed": true})

	case cmdUnsubscribe:
		d.server.RemoveSubscriber()
		return protocol.Success(req.ID, map[string]interface{}{"subscribed": false})

	case cmdPing:
		return protocol.Success(req.ID, map[string]interface{}{"pong": true})

	default:
		return protocol.Failure(req.ID, protocol.CodeUnknownCommand, "protocol",
			fmt.Sprintf("unknown command %q", req.Cmd))
	}
}

// statusData flattens a session snapshot into a response payload.
func statusData(st session.Status) map[string]interface{} {
	data := map[string]interface{}{
		"state":          st.State,
		"position":       st.Position,
		"duration":       st.Duration,
		"volume":         st.Volume,
		"shuffle":        st.Shuffle,
		"repeat":         st.Repeat,
		"rate":           st.Rate,
		"mode":           st.Mode,
		"pitch":          st.Pitch,
		"queue_length":   st.QueueLength,
		"queue_position": st.QueuePosition,
	}
	if st.Track != nil {
		data["track"] = *st.Track
	}
	return data
}

// failure maps core errors to wire error codes.
func failure(requestID string, err error) protocol.Response {
	switch {
	case errors.Is(err, session.ErrUnsupportedFormat):
		return protocol.Failure(requestID, protocol.CodeInvalidFormat, "playback", err.Error())
	case errors.Is(err, source.ErrDecode):
		return protocol.Failure(requestID, protocol.CodeDecodeError, "playback", err.Error())
	case errors.Is(err, audio.ErrDevice):
		return protocol.Failure(requestID, protocol.CodeDeviceError, "playback", err.Error())
	case errors.Is(err, queue.ErrIndex):
		return protocol.Failure(requestID, protocol.CodeInvalidIndex, "queue", err.Error())
	default:
		return protocol.Failure(requestID, protocol.CodeInternal, "internal", err.Error())
	}
}

func invalidArgs(requestID string, err error) protocol.Response {
	return protocol.Failure(requestID, protocol.CodeInvalidArgs, "protocol", err.Error())
}

func secondsToDuration(secs float64) time.Duration {
	return time.Duration(secs * float64(time.Second))
}
