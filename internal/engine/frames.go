package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/zjrosen/warden/internal/cachemanager"
	"github.com/zjrosen/warden/internal/events"
	"github.com/zjrosen/warden/internal/fleet"
	"github.com/zjrosen/warden/internal/launch"
	"github.com/zjrosen/warden/internal/log"
	"github.com/zjrosen/warden/internal/transport"
)

var _ transport.Handler = (*Engine)(nil)

// HandleFrame dispatches one runtime frame. It runs on the transport
// dispatcher goroutine, so anything that can block for long (stops,
// restarts) is handed off to its own task.
func (e *Engine) HandleFrame(ctx context.Context, frame transport.Frame) {
	name, ok := e.tokens.profileFor(frame.SenderToken)
	if !ok {
		log.Debug(log.CatTransport, "frame from unknown sender",
			"function", frame.Function.String(), "sender", frame.SenderToken)
		return
	}

	switch frame.Function {
	case transport.FuncHeartBeat:
		e.onHeartbeat(name)
	case transport.FuncUpdateStatus:
		e.onUpdateStatus(name, frame.Arg(0))
	case transport.FuncUpdateRuns, transport.FuncUpdateChickens, transport.FuncUpdateDeaths:
		e.bumpCounter(name, frame.Function)
	case transport.FuncPrintToConsole:
		e.onPrint(name, frame.Arg(0), false)
	case transport.FuncPrintToItemLog:
		e.onPrint(name, frame.Arg(0), true)
	case transport.FuncGetProfile:
		e.onGetProfile(name, frame.Arg(0))
	case transport.FuncRequestGameInfo:
		e.onRequestGameInfo(name)
	case transport.FuncSetProfile:
		e.onSetProfile(name, frame)
	case transport.FuncRestartProfile:
		e.onRestartProfile(name)
	case transport.FuncStop:
		e.onStopRequest(name)
	case transport.FuncStart:
		e.onStartRequest(ctx, name, frame.Arg(0))
	case transport.FuncKeyInUse:
		e.onKeyFailure(name, frame.Arg(0), "cd-key in use")
	case transport.FuncKeyDisabled:
		e.onKeyFailure(name, frame.Arg(0), "cd-key disabled")
	case transport.FuncKeyRD:
		e.onKeyFailure(name, frame.Arg(0), "realm down on cd-key")
	case transport.FuncStore:
		e.onStore(ctx, name, frame.Arg(0), frame.Arg(1))
	case transport.FuncRetrieve:
		e.onRetrieve(ctx, name, frame.Arg(0))
	case transport.FuncDelete:
		e.onDelete(ctx, name, frame.Arg(0))
	case transport.FuncShoutGlobal:
		e.onShout(name, frame.Arg(0), frame.Arg(1))
	case transport.FuncStopSchedule:
		e.onScheduleFlag(ctx, name, false)
	case transport.FuncStartSchedule:
		e.onScheduleFlag(ctx, name, true)
	case transport.FuncWinMsg:
		e.onWinMsg(name, frame.Arg(0), frame.Arg(1))
	default:
		log.Warn(log.CatTransport, "unhandled frame",
			"function", frame.Function.String(), "profile", name)
	}
}

// onHeartbeat records liveness. Heartbeats are frequent and publish no
// event.
func (e *Engine) onHeartbeat(name string) {
	e.store.Update(name, func(rs *fleet.RuntimeState) {
		rs.LastHeartbeat = e.clock.Now()
		rs.MissedHeartbeats = 0
	})
}

// onUpdateStatus passes the raw status through to observers and
// publishes a state change only when the stored status actually
// changed.
func (e *Engine) onUpdateStatus(name, status string) {
	changed := false
	e.store.Update(name, func(rs *fleet.RuntimeState) {
		if rs.Status != status {
			rs.Status = status
			changed = true
		}
	})

	rs, _ := e.store.Snapshot(name)
	e.publish(events.New(events.EventProfileStatus, events.StatusPayload{Status: status}).
		WithProfile(name, rs.State))
	if changed {
		e.publishStateChanged(name, nil)
	}
}

func (e *Engine) bumpCounter(name string, fn transport.Function) {
	p, err := e.profiles.GetByName(name)
	if err != nil {
		log.ErrorErr(log.CatTransport, "counter bump load", err, "profile", name)
		return
	}
	switch fn {
	case transport.FuncUpdateRuns:
		p.Counters.Runs++
	case transport.FuncUpdateChickens:
		p.Counters.Chickens++
	case transport.FuncUpdateDeaths:
		p.Counters.Deaths++
	}
	if err := e.profiles.Update(p); err != nil {
		log.ErrorErr(log.CatTransport, "counter bump save", err, "profile", name)
		return
	}
	e.publishStateChanged(name, p)
}

// printBlob is the loose shape runtimes put in print frames. Anything
// that does not parse is passed through verbatim.
type printBlob struct {
	Msg   string          `json:"msg"`
	Color any             `json:"color"`
	Item  json.RawMessage `json:"item"`
}

func (e *Engine) onPrint(name, blob string, itemLog bool) {
	payload := events.LogLinePayload{Source: name, Content: blob}
	var parsed printBlob
	if err := json.Unmarshal([]byte(blob), &parsed); err == nil && parsed.Msg != "" {
		payload.Content = parsed.Msg
		if parsed.Color != nil {
			payload.Color = fmt.Sprint(parsed.Color)
		}
		if len(parsed.Item) > 0 {
			payload.Attachment = parsed.Item
		}
	}
	if itemLog && payload.Attachment == nil {
		payload.Attachment = blob
	}
	e.publish(events.New(events.EventLogLine, payload).WithProfile(name, ""))
}

// onGetProfile answers with the requested profile document, addressed
// to the asking runtime.
func (e *Engine) onGetProfile(name, target string) {
	if target == "" {
		target = name
	}
	p, err := e.profiles.GetByName(target)
	if err != nil {
		log.Warn(log.CatTransport, "profile request for unknown profile",
			"profile", name, "target", target)
		return
	}
	doc, err := json.Marshal(p)
	if err != nil {
		log.ErrorErr(log.CatTransport, "encode profile reply", err, "profile", name)
		return
	}
	e.reply(name, launch.MsgProfile, string(doc))
}

// gameInfo is the identity document a runtime needs to enter the game:
// login fields plus the credential pair assigned for this run.
type gameInfo struct {
	Profile      string `json:"profile"`
	Account      string `json:"account,omitempty"`
	Password     string `json:"password,omitempty"`
	Character    string `json:"character,omitempty"`
	Realm        string `json:"realm,omitempty"`
	Difficulty   string `json:"difficulty,omitempty"`
	GamePath     string `json:"game_path,omitempty"`
	KeyClassic   string `json:"key_classic,omitempty"`
	KeyExpansion string `json:"key_expansion,omitempty"`
}

func (e *Engine) onRequestGameInfo(name string) {
	p, err := e.profiles.GetByName(name)
	if err != nil {
		log.ErrorErr(log.CatTransport, "game info load", err, "profile", name)
		return
	}
	info := gameInfo{
		Profile:    p.Name,
		Account:    p.Account,
		Password:   p.Password,
		Character:  p.Character,
		Realm:      p.Realm,
		Difficulty: p.Difficulty,
		GamePath:   e.gamePath(p),
	}
	if rs, ok := e.store.Snapshot(name); ok && rs.KeyName != "" && p.KeyPool != "" {
		if pool, perr := e.keyPools.GetByName(p.KeyPool); perr == nil {
			if i := pool.Find(rs.KeyName); i >= 0 {
				info.KeyClassic = pool.Keys[i].Classic
				info.KeyExpansion = pool.Keys[i].Expansion
			}
		}
	}
	doc, err := json.Marshal(info)
	if err != nil {
		log.ErrorErr(log.CatTransport, "encode game info", err, "profile", name)
		return
	}
	e.reply(name, launch.MsgGameInfo, string(doc))
}

// onSetProfile rewrites the sender's login fields from the frame's
// positional operands: account, password, character, difficulty,
// realm, info tag, game path.
func (e *Engine) onSetProfile(name string, frame transport.Frame) {
	p, err := e.profiles.GetByName(name)
	if err != nil {
		log.ErrorErr(log.CatTransport, "set profile load", err, "profile", name)
		return
	}
	before := renderProfile(p)
	p.Account = frame.Arg(0)
	p.Password = frame.Arg(1)
	p.Character = frame.Arg(2)
	p.Difficulty = frame.Arg(3)
	p.Realm = frame.Arg(4)
	p.InfoTag = frame.Arg(5)
	p.GamePath = frame.Arg(6)
	if err := e.profiles.Update(p); err != nil {
		log.ErrorErr(log.CatTransport, "set profile save", err, "profile", name)
		return
	}
	if changes := changeSummary(before, renderProfile(p)); changes != "" {
		log.Info(log.CatTransport, "profile rewritten by runtime", "profile", name, "changes", changes)
	}
	e.publishStateChanged(name, p)
}

func (e *Engine) onRestartProfile(name string) {
	if p, err := e.profiles.GetByName(name); err == nil {
		p.Counters.Restarts++
		if uerr := e.profiles.Update(p); uerr != nil {
			log.ErrorErr(log.CatTransport, "persist restart counter", uerr, "profile", name)
		}
	}
	log.Info(log.CatTransport, "restart requested by runtime", "profile", name)
	log.SafeGo("restart-"+name, func() {
		if err := e.Restart(context.Background(), name); err != nil {
			log.ErrorErr(log.CatTransport, "runtime restart failed", err, "profile", name)
		}
	})
}

func (e *Engine) onStopRequest(name string) {
	log.Info(log.CatTransport, "stop requested by runtime", "profile", name)
	log.SafeGo("stop-"+name, func() {
		if err := e.Stop(context.Background(), name, StopOptions{Reason: "requested by runtime"}); err != nil {
			log.ErrorErr(log.CatTransport, "runtime stop failed", err, "profile", name)
		}
	})
}

func (e *Engine) onStartRequest(ctx context.Context, name, target string) {
	if target == "" {
		log.Warn(log.CatTransport, "start frame without target", "profile", name)
		return
	}
	if err := e.Start(ctx, target); err != nil {
		log.ErrorErr(log.CatTransport, "runtime start failed", err,
			"profile", target, "requested_by", name)
	}
}

// onKeyFailure holds a credential the realm rejected and frees the
// sender's assignment so the next run selects another.
func (e *Engine) onKeyFailure(name, keyArg, reason string) {
	p, err := e.profiles.GetByName(name)
	if err != nil {
		log.ErrorErr(log.CatKeyPool, "key failure load", err, "profile", name)
		return
	}
	key := keyArg
	if key == "" {
		if rs, ok := e.store.Snapshot(name); ok {
			key = rs.KeyName
		}
	}
	if key == "" || p.KeyPool == "" {
		log.Warn(log.CatKeyPool, "key failure without assignment", "profile", name, "reason", reason)
		return
	}
	if err := e.keyPools.SetHeld(p.KeyPool, key, true); err != nil {
		log.ErrorErr(log.CatKeyPool, "hold credential", err, "pool", p.KeyPool, "key", key)
	}
	e.store.Update(name, func(rs *fleet.RuntimeState) {
		if rs.KeyName == key {
			rs.KeyName = ""
		}
	})
	e.publishKeyPools()
	e.publishStateChanged(name, nil)
	log.Warn(log.CatKeyPool, reason, "profile", name, "key", key)
}

func (e *Engine) cacheKey(name, key string) string {
	return name + "/" + key
}

func (e *Engine) onStore(ctx context.Context, name, key, value string) {
	if key == "" {
		log.Warn(log.CatCache, "store frame without key", "profile", name)
		return
	}
	e.cache.Set(ctx, e.cacheKey(name, key), value, cachemanager.NoExpiration)
	log.Debug(log.CatCache, "runtime value stored", "profile", name, "key", key)
}

// retrieveReply answers a retrieve frame. Value is empty when the key
// was never stored.
type retrieveReply struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func (e *Engine) onRetrieve(ctx context.Context, name, key string) {
	if key == "" {
		log.Warn(log.CatCache, "retrieve frame without key", "profile", name)
		return
	}
	value, _ := e.cache.Get(ctx, e.cacheKey(name, key))
	doc, err := json.Marshal(retrieveReply{Key: key, Value: value})
	if err != nil {
		log.ErrorErr(log.CatCache, "encode retrieve reply", err, "profile", name)
		return
	}
	e.reply(name, launch.MsgRetrieve, string(doc))
}

func (e *Engine) onDelete(ctx context.Context, name, key string) {
	if key == "" {
		log.Warn(log.CatCache, "delete frame without key", "profile", name)
		return
	}
	_ = e.cache.Delete(ctx, e.cacheKey(name, key))
	log.Debug(log.CatCache, "runtime value deleted", "profile", name, "key", key)
}

// onShout relays a chat line to every other running profile.
func (e *Engine) onShout(name, msg, typeCode string) {
	doc, err := json.Marshal(map[string]string{
		"from": name,
		"msg":  msg,
		"type": typeCode,
	})
	if err != nil {
		log.ErrorErr(log.CatTransport, "encode shout", err, "profile", name)
		return
	}
	for other, rs := range e.store.SnapshotAll() {
		if other == name || rs.State != fleet.StateRunning {
			continue
		}
		handle, ok := e.store.Handle(other)
		if !ok {
			continue
		}
		if err := e.launcher.SendMessage(handle, launch.MsgShout, string(doc)); err != nil {
			log.Debug(log.CatTransport, "shout relay failed", "from", name, "to", other, "error", err.Error())
		}
	}
}

func (e *Engine) onScheduleFlag(ctx context.Context, name string, enabled bool) {
	if err := e.SetScheduleEnabled(ctx, name, enabled); err != nil {
		log.ErrorErr(log.CatTransport, "schedule flag from runtime", err, "profile", name)
	}
}

// onWinMsg forwards a raw window message to the sender's own window.
func (e *Engine) onWinMsg(name, msgStr, wParamStr string) {
	msgID, err := strconv.Atoi(msgStr)
	if err != nil {
		log.Warn(log.CatTransport, "winmsg with bad message id", "profile", name, "msg", msgStr)
		return
	}
	wParam := 0
	if wParamStr != "" {
		if wParam, err = strconv.Atoi(wParamStr); err != nil {
			log.Warn(log.CatTransport, "winmsg with bad wparam", "profile", name, "wparam", wParamStr)
			return
		}
	}
	handle, ok := e.store.Handle(name)
	if !ok {
		return
	}
	if err := e.launcher.PostWindowMessage(handle, msgID, wParam); err != nil {
		log.Debug(log.CatTransport, "winmsg forward failed", "profile", name, "error", err.Error())
	}
}

// reply sends a typed payload back to the named profile's process.
func (e *Engine) reply(name string, mt launch.MessageType, payload string) {
	handle, ok := e.store.Handle(name)
	if !ok {
		log.Debug(log.CatTransport, "reply with no live process", "profile", name, "type", string(mt))
		return
	}
	if err := e.launcher.SendMessage(handle, mt, payload); err != nil {
		log.Debug(log.CatTransport, "reply failed", "profile", name, "type", string(mt), "error", err.Error())
	}
}
