package agentloop

import (
	"context"
	"fmt"
	"strings"

	"github.com/neo050/Office-Automation-Law-bot/logger"
	"github.com/neo050/Office-Automation-Law-bot/store"
	"github.com/neo050/Office-Automation-Law-bot/whatsapp"
)

// Confirmation states. A fresh conversation walks need_phone then need_name;
// once ready, the confirmed details ride along in the system prompt and the
// model dialogue takes over.
const (
	confirmNeedPhone = "need_phone"
	confirmNeedName  = "need_name"
	confirmReady     = "ready"
)

var yesWords = map[string]bool{
	"כן":    true,
	"אישור": true,
	"מאשר":  true,
	"מאשרת": true,
	"yes":   true,
}

func isYes(text string) bool {
	return yesWords[strings.ToLower(strings.TrimSpace(text))]
}

// confirmGate advances the contact-confirmation machine for msg. handled
// means the gate consumed the message and the model loop must not run;
// conf is the current record (nil only on storage failure).
func (l *Loop) confirmGate(ctx context.Context, msg *whatsapp.InboundMessage) (conf *store.Confirmation, handled bool, err error) {
	key := msg.SessionKey()
	conf, err = l.store.LoadConfirmation(ctx, key)
	if err != nil {
		return nil, false, err
	}

	if conf == nil {
		conf = &store.Confirmation{State: confirmNeedPhone}
		if err := l.store.SaveConfirmation(ctx, key, *conf, l.confirmTTL); err != nil {
			return nil, false, err
		}
		l.send(ctx, key, askPhoneMsg)
		return conf, true, nil
	}

	switch conf.State {
	case confirmNeedPhone:
		text := strings.TrimSpace(msg.Text)
		switch {
		case isYes(text):
			conf.Phone = "+" + msg.From
		case ValidPhone(text):
			conf.Phone = text
		default:
			l.send(ctx, key, badPhoneMsg)
			return conf, true, nil
		}
		// A returning client is already in the registry; adopt the filed
		// name and skip the name step.
		if fullName, found := l.registryName(ctx, conf.Phone); found {
			conf.FullName = fullName
			conf.State = confirmReady
			if err := l.store.SaveConfirmation(ctx, key, *conf, l.historyTTL); err != nil {
				return nil, false, err
			}
			logger.Info("contact details restored from registry", "session", key)
			l.send(ctx, key, knownClientMsg)
			return conf, true, nil
		}
		conf.State = confirmNeedName
		if err := l.store.SaveConfirmation(ctx, key, *conf, l.confirmTTL); err != nil {
			return nil, false, err
		}
		l.send(ctx, key, askNameMsg)
		return conf, true, nil

	case confirmNeedName:
		text := strings.TrimSpace(msg.Text)
		if !ValidFullName(text) {
			l.send(ctx, key, badNameMsg)
			return conf, true, nil
		}
		conf.FullName = text
		conf.State = confirmReady
		// Ready outlives the intake prompt window so the confirmed details
		// stay injectable for the rest of the conversation.
		if err := l.store.SaveConfirmation(ctx, key, *conf, l.historyTTL); err != nil {
			return nil, false, err
		}
		logger.Info("contact details confirmed", "session", key)
		return conf, false, nil

	case confirmReady:
		return conf, false, nil
	}

	// Unknown state: a corrupt or legacy row. Drop it and restart onboarding.
	logger.Warn("confirmation state unrecognized", "session", key, "state", conf.State)
	if err := l.store.DeleteConfirmation(ctx, key); err != nil {
		return nil, false, err
	}
	conf = &store.Confirmation{State: confirmNeedPhone}
	if err := l.store.SaveConfirmation(ctx, key, *conf, l.confirmTTL); err != nil {
		return nil, false, err
	}
	l.send(ctx, key, askPhoneMsg)
	return conf, true, nil
}

// registryName resolves a confirmed phone to the client's filed full name.
// Lookup failures degrade to the manual name step.
func (l *Loop) registryName(ctx context.Context, phone string) (string, bool) {
	fullName, found, err := l.actions.FindByPhone(ctx, phone)
	if err != nil {
		logger.Warn("registry phone lookup failed", "error", err)
		return "", false
	}
	if !found || !ValidFullName(fullName) {
		return "", false
	}
	return fullName, true
}

// confirmedContact overrides model-supplied contact arguments with the
// gate-verified values once confirmation is complete.
func confirmedContact(conf *store.Confirmation, fullName, phone string) (string, string) {
	if conf == nil || conf.State != confirmReady {
		return fullName, phone
	}
	if conf.FullName != "" {
		fullName = conf.FullName
	}
	if conf.Phone != "" {
		phone = conf.Phone
	}
	return fullName, phone
}

// systemPromptFor appends the confirmed contact details to the base prompt
// so the model never re-asks for them.
func systemPromptFor(conf *store.Confirmation) string {
	if conf == nil || conf.State != confirmReady {
		return systemPrompt
	}
	return systemPrompt + fmt.Sprintf(
		"\nפרטים מאומתים: טלפון: %s, שם מלא: %s.\n", conf.Phone, conf.FullName)
}
