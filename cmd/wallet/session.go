package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/Maphikza/sip-privacy-wallet/internal/chain"
	"github.com/Maphikza/sip-privacy-wallet/internal/config"
	"github.com/Maphikza/sip-privacy-wallet/internal/keystore"
	"github.com/Maphikza/sip-privacy-wallet/internal/logger"
	"github.com/Maphikza/sip-privacy-wallet/internal/notify"
	"github.com/Maphikza/sip-privacy-wallet/internal/privacy"
	"github.com/Maphikza/sip-privacy-wallet/internal/wallet"
)

const passphraseEnv = "SIP_PASSPHRASE"

// session is an unlocked keystore and the engine on top of it.
type session struct {
	settings config.Settings
	store    keystore.Store
	engine   *wallet.Engine
	notifier *notify.NostrNotifier
	closers  []io.Closer
}

func readPassphrase() (string, error) {
	if p := os.Getenv(passphraseEnv); p != "" {
		return p, nil
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return "", fmt.Errorf("no terminal to prompt for a passphrase; set %s", passphraseEnv)
	}
	fmt.Fprint(os.Stderr, "Passphrase: ")
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read passphrase: %w", err)
	}
	if len(b) == 0 {
		return "", errors.New("passphrase cannot be empty")
	}
	return string(b), nil
}

// openSession unlocks the configured keystore. With needChain unset a
// wallet without RPC endpoints still opens, against an offline chain.
// Scan notifications go to the log, the configured nostr relays and extra.
func openSession(ctx context.Context, needChain bool, extra ...notify.Notifier) (*session, error) {
	s := &session{settings: config.Current()}

	inner, err := keystore.Open(keystore.Backend(s.settings.StoreBackend), s.settings.StorePath)
	if err != nil {
		return nil, err
	}
	if c, ok := inner.(io.Closer); ok {
		s.closers = append(s.closers, c)
	}

	pass, err := readPassphrase()
	if err != nil {
		s.Close()
		return nil, err
	}
	sealed, err := keystore.NewSealed(ctx, inner, pass, s.settings.ScryptN)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.store = sealed

	var client chain.Client
	if eps := s.settings.Endpoints(); len(eps) > 0 {
		client, err = chain.NewHTTPClient(eps)
		if err != nil {
			s.Close()
			return nil, err
		}
	} else if needChain {
		s.Close()
		return nil, errors.New("no rpc_endpoint configured")
	} else {
		client = chain.NewMemoryClient()
	}

	notifier := notify.Multi{notify.LogNotifier{}}
	if s.settings.NostrPrivateKey != "" && len(s.settings.NostrRelays) > 0 {
		s.notifier, err = notify.NewNostrNotifier(s.settings.NostrPrivateKey, s.settings.NostrRelays)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("invalid nostr_private_key: %w", err)
		}
		notifier = append(notifier, s.notifier)
	}
	notifier = append(notifier, extra...)

	endpoints := make(map[privacy.Kind]string, len(s.settings.ProviderEndpoints))
	for k, v := range s.settings.ProviderEndpoints {
		endpoints[privacy.Kind(k)] = v
	}

	s.engine, err = wallet.New(wallet.Options{
		Store:             s.store,
		Chain:             client,
		ChainName:         s.settings.Chain,
		Network:           s.settings.Network,
		RPCEndpoint:       s.settings.RPCEndpoint,
		ProviderEndpoints: endpoints,
		Notifier:          notifier,
		PaymentLimit:      s.settings.PaymentLimit,
		SeenLimit:         s.settings.SeenLimit,
		ScanInterval:      s.settings.ScanInterval,
		MinScanInterval:   s.settings.MinScanInterval,
	})
	if err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *session) Close() {
	if s.notifier != nil {
		s.notifier.Wait()
	}
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			logger.Warn("Failed to close keystore", "error", err)
		}
	}
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func privacyKind(s string) (privacy.Kind, error) {
	k := privacy.Kind(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := privacy.Capabilities[k]; !ok {
		return "", fmt.Errorf("%w: %s", privacy.ErrUnknownProvider, s)
	}
	return k, nil
}
