package media

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/emiago/sipgo"
	"github.com/emiago/sipgo/sip"
	"github.com/google/uuid"

	"github.com/runslikebutter/doorphone/internal/logger"
)

// LineConfig holds the local SIP identity for outbound audio calls.
type LineConfig struct {
	BindAddr      string
	Port          int
	AdvertiseAddr string
	Username      string
}

// LineSession is the internal provider's media session: a single outbound
// SIP audio call to the door panel, with G.711 RTP carried on a locally
// bound UDP socket. It implements Session.
type LineSession struct {
	cfg     LineConfig
	handler Handler

	ua     *sipgo.UserAgent
	client *sipgo.Client
	server *sipgo.Server

	mu        sync.Mutex
	dialing   bool
	connected bool
	closed    bool
	cancel    context.CancelFunc
	invite    *sip.Request
	okResp    *sip.Response
	stream    *AudioStream
	micOn     bool
}

// NewLineSession builds the SIP stack and starts listening for in-dialog
// requests. Call Close to release the sockets.
func NewLineSession(cfg LineConfig, handler Handler) (*LineSession, error) {
	if handler == nil {
		handler = NoopHandler{}
	}
	if cfg.AdvertiseAddr == "" {
		cfg.AdvertiseAddr = cfg.BindAddr
	}
	if cfg.Username == "" {
		cfg.Username = "doorphone"
	}

	ua, err := sipgo.NewUA()
	if err != nil {
		return nil, fmt.Errorf("create user agent: %w", err)
	}
	srv, err := sipgo.NewServer(ua)
	if err != nil {
		ua.Close()
		return nil, fmt.Errorf("create server: %w", err)
	}
	client, err := sipgo.NewClient(ua)
	if err != nil {
		ua.Close()
		return nil, fmt.Errorf("create client: %w", err)
	}

	s := &LineSession{
		cfg:     cfg,
		handler: handler,
		ua:      ua,
		client:  client,
		server:  srv,
		micOn:   true,
	}

	srv.OnRequest(sip.BYE, s.handleBYE)

	go func() {
		addr := fmt.Sprintf("%s:%d", cfg.BindAddr, cfg.Port)
		if err := srv.ListenAndServe(context.Background(), "udp", addr); err != nil {
			logger.Error("[LineSession] SIP listener stopped", "addr", addr, "error", err)
		}
	}()

	return s, nil
}

// Connect dials the panel at the given SIP URI. The outcome is reported on
// the Handler; credential is unused for the internal provider.
func (s *LineSession) Connect(ctx context.Context, credential, room string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("line session closed")
	}
	if s.dialing || s.connected {
		s.mu.Unlock()
		return fmt.Errorf("line session already active")
	}
	s.dialing = true
	dialCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	go s.dial(dialCtx, credential, room)
	return nil
}

func (s *LineSession) dial(ctx context.Context, credential, target string) {
	fail := func(err error) {
		s.mu.Lock()
		s.dialing = false
		s.mu.Unlock()
		s.handler.SessionDisconnected(err)
	}

	rtpConn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP(s.cfg.BindAddr)})
	if err != nil {
		fail(fmt.Errorf("bind rtp socket: %w", err))
		return
	}
	rtpPort := rtpConn.LocalAddr().(*net.UDPAddr).Port

	offer, err := BuildAudioOffer(s.cfg.AdvertiseAddr, rtpPort)
	if err != nil {
		rtpConn.Close()
		fail(fmt.Errorf("build offer: %w", err))
		return
	}

	invite, err := s.buildINVITE(target, credential, offer)
	if err != nil {
		rtpConn.Close()
		fail(err)
		return
	}

	tx, err := s.client.TransactionRequest(ctx, invite)
	if err != nil {
		rtpConn.Close()
		fail(fmt.Errorf("send INVITE: %w", err))
		return
	}
	defer tx.Terminate()

	for {
		select {
		case <-ctx.Done():
			s.sendCANCEL(invite)
			rtpConn.Close()
			fail(ctx.Err())
			return

		case resp := <-tx.Responses():
			if resp == nil {
				rtpConn.Close()
				fail(fmt.Errorf("no response received"))
				return
			}
			switch {
			case resp.StatusCode < 200:
				logger.Debug("[LineSession] Provisional response",
					"status", int(resp.StatusCode), "reason", resp.Reason)

			case resp.StatusCode < 300:
				if err := s.establish(invite, resp, rtpConn); err != nil {
					rtpConn.Close()
					fail(err)
					return
				}
				return

			default:
				rtpConn.Close()
				fail(fmt.Errorf("call rejected: %d %s", int(resp.StatusCode), resp.Reason))
				return
			}

		case <-tx.Done():
			rtpConn.Close()
			fail(fmt.Errorf("transaction terminated before answer"))
			return
		}
	}
}

// establish ACKs the 2xx, negotiates media from the answer SDP and starts
// the RTP stream.
func (s *LineSession) establish(invite *sip.Request, resp *sip.Response, rtpConn *net.UDPConn) error {
	if err := s.sendACK(invite, resp); err != nil {
		return err
	}

	remote, err := ParseAudioAnswer(resp.Body())
	if err != nil {
		return err
	}

	stream, err := NewAudioStream(rtpConn, remote, nil)
	if err != nil {
		return err
	}

	s.mu.Lock()
	stream.SetMicEnabled(s.micOn)
	s.invite = invite
	s.okResp = resp
	s.stream = stream
	s.dialing = false
	s.connected = true
	s.mu.Unlock()

	stream.Start(nil)
	logger.Info("[LineSession] Call established",
		"remote", remote.Addr, "port", remote.Port, "codec", remote.Codec.Name)

	s.handler.SessionConnected()
	s.handler.ParticipantJoined(invite.Recipient.User)
	return nil
}

func (s *LineSession) buildINVITE(target, credential string, sdpBody []byte) (*sip.Request, error) {
	var requestURI sip.Uri
	if err := sip.ParseUri(target, &requestURI); err != nil {
		return nil, fmt.Errorf("invalid line target %q: %w", target, err)
	}

	invite := sip.NewRequest(sip.INVITE, requestURI)

	maxFwd := sip.MaxForwardsHeader(70)
	invite.AppendHeader(&maxFwd)

	fromURI := sip.Uri{
		Scheme: "sip",
		User:   s.cfg.Username,
		Host:   s.cfg.AdvertiseAddr,
		Port:   s.cfg.Port,
	}
	fromParams := sip.NewParams()
	fromParams.Add("tag", uuid.NewString())
	invite.AppendHeader(&sip.FromHeader{
		Address: fromURI,
		Params:  fromParams,
	})

	var toURI sip.Uri
	_ = sip.ParseUri(target, &toURI)
	invite.AppendHeader(&sip.ToHeader{
		Address: toURI,
		Params:  sip.NewParams(),
	})

	callID := sip.CallIDHeader(uuid.NewString())
	invite.AppendHeader(&callID)

	invite.AppendHeader(&sip.CSeqHeader{
		SeqNo:      1,
		MethodName: sip.INVITE,
	})

	invite.AppendHeader(&sip.ContactHeader{
		Address: sip.Uri{
			Scheme: "sip",
			User:   s.cfg.Username,
			Host:   s.cfg.AdvertiseAddr,
			Port:   s.cfg.Port,
		},
	})

	if credential != "" {
		invite.AppendHeader(sip.NewHeader("Authorization", "Bearer "+credential))
	}

	contentType := sip.ContentTypeHeader("application/sdp")
	invite.AppendHeader(&contentType)
	invite.SetBody(sdpBody)

	return invite, nil
}

// sendACK acknowledges a 2xx response. The Request-URI comes from the 2xx
// Contact and the ACK goes out through the existing transport connection.
func (s *LineSession) sendACK(invite *sip.Request, resp *sip.Response) error {
	requestURI := invite.Recipient
	if contact := resp.Contact(); contact != nil {
		requestURI = contact.Address
	}

	ack := sip.NewRequest(sip.ACK, requestURI)
	sip.CopyHeaders("From", invite, ack)
	sip.CopyHeaders("Call-ID", invite, ack)

	if to := resp.To(); to != nil {
		ack.AppendHeader(&sip.ToHeader{
			DisplayName: to.DisplayName,
			Address:     to.Address,
			Params:      to.Params,
		})
	}
	if cseq := invite.CSeq(); cseq != nil {
		ack.AppendHeader(&sip.CSeqHeader{
			SeqNo:      cseq.SeqNo,
			MethodName: sip.ACK,
		})
	}
	maxFwd := sip.MaxForwardsHeader(70)
	ack.AppendHeader(&maxFwd)

	dest := resp.Source()
	if dest == "" {
		port := requestURI.Port
		if port == 0 {
			port = 5060
		}
		dest = fmt.Sprintf("%s:%d", requestURI.Host, port)
	}
	ack.SetDestination(dest)

	ackDone := make(chan error, 1)
	go func() {
		ackDone <- s.client.WriteRequest(ack)
	}()
	select {
	case err := <-ackDone:
		if err != nil {
			return fmt.Errorf("write ACK: %w", err)
		}
		return nil
	case <-time.After(5 * time.Second):
		return fmt.Errorf("write ACK: transport timeout")
	}
}

// sendCANCEL aborts a pending INVITE transaction.
func (s *LineSession) sendCANCEL(invite *sip.Request) {
	cancelReq := sip.NewRequest(sip.CANCEL, invite.Recipient)
	sip.CopyHeaders("Via", invite, cancelReq)
	sip.CopyHeaders("From", invite, cancelReq)
	sip.CopyHeaders("To", invite, cancelReq)
	sip.CopyHeaders("Call-ID", invite, cancelReq)
	if cseq := invite.CSeq(); cseq != nil {
		cancelReq.AppendHeader(&sip.CSeqHeader{
			SeqNo:      cseq.SeqNo,
			MethodName: sip.CANCEL,
		})
	}
	maxFwd := sip.MaxForwardsHeader(70)
	cancelReq.AppendHeader(&maxFwd)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	tx, err := s.client.TransactionRequest(ctx, cancelReq)
	if err != nil {
		logger.Debug("[LineSession] CANCEL failed", "error", err)
		return
	}
	select {
	case <-tx.Responses():
	case <-tx.Done():
	case <-ctx.Done():
	}
	tx.Terminate()
}

// sendBYE terminates the established dialog.
func (s *LineSession) sendBYE(invite *sip.Request, okResp *sip.Response) {
	requestURI := invite.Recipient
	if contact := okResp.Contact(); contact != nil {
		requestURI = contact.Address
	}

	bye := sip.NewRequest(sip.BYE, requestURI)
	sip.CopyHeaders("From", invite, bye)
	sip.CopyHeaders("Call-ID", invite, bye)
	if to := okResp.To(); to != nil {
		bye.AppendHeader(&sip.ToHeader{
			DisplayName: to.DisplayName,
			Address:     to.Address,
			Params:      to.Params,
		})
	}
	seq := uint32(1)
	if cseq := invite.CSeq(); cseq != nil {
		seq = cseq.SeqNo
	}
	bye.AppendHeader(&sip.CSeqHeader{
		SeqNo:      seq + 1,
		MethodName: sip.BYE,
	})
	maxFwd := sip.MaxForwardsHeader(70)
	bye.AppendHeader(&maxFwd)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	tx, err := s.client.TransactionRequest(ctx, bye)
	if err != nil {
		logger.Debug("[LineSession] BYE failed", "error", err)
		return
	}
	select {
	case <-tx.Responses():
	case <-tx.Done():
	case <-ctx.Done():
	}
	tx.Terminate()
}

// handleBYE processes a hangup from the far end.
func (s *LineSession) handleBYE(req *sip.Request, tx sip.ServerTransaction) {
	res := sip.NewResponseFromRequest(req, sip.StatusOK, "OK", nil)
	if err := tx.Respond(res); err != nil {
		logger.Debug("[LineSession] BYE response failed", "error", err)
	}

	s.mu.Lock()
	wasConnected := s.connected
	stream := s.stream
	s.connected = false
	s.stream = nil
	s.invite = nil
	s.okResp = nil
	s.mu.Unlock()

	if !wasConnected {
		return
	}
	if stream != nil {
		stream.Stop()
	}
	logger.Info("[LineSession] Far end hung up", "call_id", req.CallID().Value())
	s.handler.ParticipantLeft(req.From().Address.User)
	s.handler.SessionDisconnected(nil)
}

// Disconnect hangs up the call, or cancels the pending dial. Idempotent.
// No Handler callback fires for a local disconnect initiated here, and the
// BYE goes out on its own goroutine so the caller never blocks on SIP
// signaling.
func (s *LineSession) Disconnect() {
	s.mu.Lock()
	cancel := s.cancel
	invite, okResp := s.invite, s.okResp
	stream := s.stream
	wasConnected := s.connected
	s.dialing = false
	s.connected = false
	s.cancel = nil
	s.invite = nil
	s.okResp = nil
	s.stream = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if stream != nil {
		stream.Stop()
	}
	if wasConnected && invite != nil && okResp != nil {
		go s.sendBYE(invite, okResp)
	}
}

// Close hangs up and releases the SIP stack.
func (s *LineSession) Close() {
	s.Disconnect()
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	s.ua.Close()
}

// SetAudioEnabled toggles the microphone on the RTP stream.
func (s *LineSession) SetAudioEnabled(enabled bool) {
	s.mu.Lock()
	s.micOn = enabled
	stream := s.stream
	s.mu.Unlock()
	if stream != nil {
		stream.SetMicEnabled(enabled)
	}
}

// AudioEnabled reports the microphone state.
func (s *LineSession) AudioEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.micOn
}

// SetVideoEnabled is a no-op: the audio line carries no video.
func (s *LineSession) SetVideoEnabled(bool) {}

// VideoEnabled always reports false for the audio line.
func (s *LineSession) VideoEnabled() bool { return false }
