package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/pion/rtp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/arzzra/webrtc_client/pkg/local_media"
	"github.com/arzzra/webrtc_client/pkg/peer"
	"github.com/arzzra/webrtc_client/pkg/pion_peer"
	"github.com/arzzra/webrtc_client/pkg/room"
	"github.com/arzzra/webrtc_client/pkg/signaling"
	"github.com/arzzra/webrtc_client/pkg/signaling/mockSession"
)

func main() {
	var (
		mode        = flag.String("mode", "mock", "Режим: mock (встроенный сервер) или ws")
		url         = flag.String("url", "ws://127.0.0.1:8080/ws", "Адрес signaling сервера для режима ws")
		usePion     = flag.Bool("pion", false, "Использовать pion/webrtc вместо заглушек")
		timeout     = flag.Duration("timeout", 10*time.Second, "Таймаут подтверждения перехода")
		metricsAddr = flag.String("metrics", "", "Адрес HTTP для /metrics, пусто чтобы выключить")
		debug       = flag.Bool("debug", false, "Подробное логирование")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, *mode, *url, *usePion, *timeout, *metricsAddr); err != nil {
		logger.Error("Клиент завершился с ошибкой", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, mode, url string, usePion bool, timeout time.Duration, metricsAddr string) error {
	reg := prometheus.NewRegistry()
	cfg := room.DefaultConfig()
	cfg.TransitionTimeout = timeout
	cfg.Logger = logger
	cfg.MetricsRegisterer = reg

	if usePion {
		pcfg := pion_peer.DefaultConfig()
		pcfg.Logger = logger
		factory, err := pion_peer.NewFactory(pcfg)
		if err != nil {
			return err
		}
		acq := pion_peer.NewAcquirer()
		acq.OnTrack(func(t *pion_peer.Track) { go feedSilence(ctx, t) })
		cfg.ConnectionFactory = factory.NewConnection
		cfg.Acquirer = acq
	} else {
		cfg.ConnectionFactory = peer.NewFakeConnections().Factory()
		cfg.Acquirer = local_media.NewFakeAcquirer()
	}

	client, err := room.NewClient(cfg)
	if err != nil {
		return err
	}
	defer client.Dispose()

	session, err := dialSession(ctx, logger, mode, url)
	if err != nil {
		return err
	}

	h, err := client.InitRoom(session)
	if err != nil {
		return err
	}
	if err := subscribe(h, logger); err != nil {
		return err
	}

	if metricsAddr != "" {
		srv := &http.Server{Addr: metricsAddr, Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{})}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("HTTP сервер метрик остановлен", slog.String("error", err.Error()))
			}
		}()
		defer srv.Close()
	}

	fmt.Println("Команды: mute|unmute|disable|enable audio|video|display, disable-remote|enable-remote audio|video, camera <device>, state, quit")
	return repl(ctx, h)
}

func dialSession(ctx context.Context, logger *slog.Logger, mode, url string) (signaling.Session, error) {
	switch mode {
	case "ws":
		wcfg := signaling.DefaultWebSocketConfig()
		wcfg.URL = url
		wcfg.Logger = logger
		return signaling.DialWebSocket(ctx, wcfg)
	case "mock":
		session := mockSession.NewSession()
		server := mockSession.NewServer(session)
		server.AddPeer(demoPeer())
		return session, nil
	}
	return nil, fmt.Errorf("неизвестный режим: %s", mode)
}

// demoPeer peer с микрофоном, камерой и входящим видео собеседника
func demoPeer() signaling.PeerCreated {
	track := func(id signaling.TrackID, dir signaling.TrackDirection, kind signaling.MediaKind) signaling.Track {
		t := signaling.Track{
			ID:                id,
			Direction:         dir,
			MediaType:         signaling.MediaType{Kind: kind, Source: signaling.SourceDevice},
			EnabledIndividual: true,
			EnabledGeneral:    true,
		}
		if dir == signaling.DirectionSend {
			t.Receivers = []signaling.MemberID{"bob"}
		} else {
			t.Sender = "bob"
		}
		return t
	}
	return signaling.PeerCreated{
		PeerID: 1,
		Tracks: []signaling.Track{
			track(1, signaling.DirectionSend, signaling.MediaKindAudio),
			track(2, signaling.DirectionSend, signaling.MediaKindVideo),
			track(3, signaling.DirectionRecv, signaling.MediaKindVideo),
		},
	}
}

func subscribe(h *room.RoomHandle, logger *slog.Logger) error {
	if err := h.OnLocalTrack(func(t *local_media.Track) {
		logger.Info("Новый локальный трек", slog.String("kind", t.Kind().String()), slog.String("device", t.DeviceID()))
	}); err != nil {
		return err
	}
	if err := h.OnFailedLocalMedia(func(err error) {
		logger.Warn("Не удалось получить локальное медиа", slog.String("error", err.Error()))
	}); err != nil {
		return err
	}
	if err := h.OnConnectionLoss(func(rh *signaling.ReconnectHandle) {
		logger.Warn("Соединение потеряно, переподключение")
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			if err := rh.ReconnectWithBackoff(ctx, 500*time.Millisecond, 2, 10*time.Second); err != nil {
				logger.Error("Переподключение не удалось", slog.String("error", err.Error()))
			}
		}()
	}); err != nil {
		return err
	}
	return h.OnClose(func(r room.CloseReason) {
		logger.Info("Комната закрыта", slog.String("reason", r.Reason), slog.Bool("by_server", r.IsClosedByServer))
	})
}

func repl(ctx context.Context, h *room.RoomHandle) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			fields := strings.Fields(line)
			if len(fields) == 0 {
				continue
			}
			if fields[0] == "quit" {
				return nil
			}
			if err := execute(ctx, h, fields); err != nil {
				fmt.Printf("Ошибка: %v\n", err)
				continue
			}
			fmt.Println("OK")
		}
	}
}

func execute(ctx context.Context, h *room.RoomHandle, fields []string) error {
	switch fields[0] {
	case "state":
		state, err := h.State()
		if err != nil {
			return err
		}
		out, err := json.MarshalIndent(state, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	case "camera":
		if len(fields) != 2 {
			return errors.New("использование: camera <device>")
		}
		settings, err := h.Settings()
		if err != nil {
			return err
		}
		settings.SetDeviceVideo(local_media.TrackConstraints{DeviceID: fields[1]})
		return h.SetLocalMediaSettings(ctx, settings, false, true)
	}

	if len(fields) != 2 {
		return fmt.Errorf("использование: %s audio|video|display", fields[0])
	}
	var (
		audio  = fields[1] == "audio"
		source *signaling.MediaSourceKind
	)
	switch fields[1] {
	case "audio":
	case "video":
		source = signaling.Source(signaling.SourceDevice)
	case "display":
		source = signaling.Source(signaling.SourceDisplay)
	default:
		return fmt.Errorf("неизвестный источник: %s", fields[1])
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	switch fields[0] {
	case "mute":
		if audio {
			return h.MuteAudio(ctx)
		}
		return h.MuteVideo(ctx, source)
	case "unmute":
		if audio {
			return h.UnmuteAudio(ctx)
		}
		return h.UnmuteVideo(ctx, source)
	case "disable":
		if audio {
			return h.DisableAudio(ctx)
		}
		return h.DisableVideo(ctx, source)
	case "enable":
		if audio {
			return h.EnableAudio(ctx)
		}
		return h.EnableVideo(ctx, source)
	case "disable-remote":
		if audio {
			return h.DisableRemoteAudio(ctx)
		}
		return h.DisableRemoteVideo(ctx, source)
	case "enable-remote":
		if audio {
			return h.EnableRemoteAudio(ctx)
		}
		return h.EnableRemoteVideo(ctx, source)
	}
	return fmt.Errorf("неизвестная команда: %s", fields[0])
}

// feedSilence пишет в трек пустые пакеты каждые 20мс, пока трек не остановлен
func feedSilence(ctx context.Context, t *pion_peer.Track) {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	pkt := &rtp.Packet{Header: rtp.Header{Version: 2, PayloadType: 111}}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		pkt.SequenceNumber++
		pkt.Timestamp += 960
		if err := t.WriteRTP(pkt); err != nil {
			return
		}
	}
}
