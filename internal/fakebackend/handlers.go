package fakebackend

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"parley/models"
	"parley/protocol"

	"github.com/gorilla/websocket"
)

// Session is one connected websocket client.
type Session struct {
	UserID int64
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	once   sync.Once
}

func (sess *Session) close() {
	sess.once.Do(func() {
		close(sess.done)
		_ = sess.conn.Close()
	})
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	}
	claims, err := s.ValidateToken(token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Invalid or expired token")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade")
		return
	}
	sess := &Session{
		UserID: claims.UserID,
		conn:   conn,
		send:   make(chan []byte, 64),
		done:   make(chan struct{}),
	}
	s.addSession(sess)
	s.log.Info().Int64("user_id", sess.UserID).Msg("client connected")
	s.broadcastPresence(protocol.KindUserOnline, sess.UserID)

	go s.writeLoop(sess)
	s.readLoop(sess)

	if s.removeSession(sess) {
		s.broadcastPresence(protocol.KindUserOffline, sess.UserID)
	}
	s.log.Info().Int64("user_id", sess.UserID).Msg("client disconnected")
}

func (s *Server) readLoop(sess *Session) {
	defer sess.close()
	for {
		_, frame, err := sess.conn.ReadMessage()
		if err != nil {
			return
		}
		ev, err := protocol.Decode(frame)
		if err != nil {
			s.log.Debug().Err(err).Msg("drop client frame")
			continue
		}
		send, ok := ev.(protocol.SendMessageEvent)
		if !ok {
			continue
		}
		s.handleSendMessage(sess, send.SendMessage)
	}
}

func (s *Server) writeLoop(sess *Session) {
	for {
		select {
		case <-sess.done:
			return
		case frame := <-sess.send:
			_ = sess.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
			if err := sess.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				sess.close()
				return
			}
		}
	}
}

func (s *Server) handleSendMessage(sess *Session, in protocol.SendMessage) {
	if in.Token == "" {
		s.sendError(sess, "Missing token")
		return
	}
	claims, err := s.ValidateToken(in.Token)
	if err != nil {
		s.sendError(sess, "Invalid or expired token")
		return
	}
	if in.ReceiverID == 0 || in.Message == "" {
		s.sendError(sess, "Missing receiver_id or message")
		return
	}

	msg, err := s.store.SaveMessage(claims.UserID, in.ReceiverID, in.Message)
	if err != nil {
		s.sendError(sess, err.Error())
		return
	}
	select {
	case s.sent <- in:
	default:
	}

	if receiver := s.session(in.ReceiverID); receiver != nil {
		s.enqueue(receiver, protocol.NewMessage{Message: msg})
	}
	s.enqueue(sess, protocol.MessageSent{Message: msg})
}

func (s *Server) sendError(sess *Session, message string) {
	s.enqueue(sess, protocol.ChannelError{ErrorPayload: protocol.ErrorPayload{Message: message}})
}

func (s *Server) enqueue(sess *Session, ev protocol.Event) {
	frame, err := protocol.EncodeEvent(ev)
	if err != nil {
		s.log.Error().Err(err).Msg("encode event")
		return
	}
	select {
	case sess.send <- frame:
	case <-sess.done:
	default:
		s.log.Warn().Int64("user_id", sess.UserID).Msg("send buffer full, dropping event")
	}
}

// Push delivers ev to userID if connected. It reports whether the user was
// online.
func (s *Server) Push(userID int64, ev protocol.Event) bool {
	sess := s.session(userID)
	if sess == nil {
		return false
	}
	s.enqueue(sess, ev)
	return true
}

// PushRaw writes an arbitrary frame to userID, bypassing the codec.
func (s *Server) PushRaw(userID int64, frame []byte) bool {
	sess := s.session(userID)
	if sess == nil {
		return false
	}
	select {
	case sess.send <- frame:
		return true
	case <-sess.done:
		return false
	}
}

// Deliver stores a message from sender to receiver as if sender had sent it
// over its own channel, and pushes new_message to the receiver.
func (s *Server) Deliver(senderID, receiverID int64, text string) (models.Message, error) {
	msg, err := s.store.SaveMessage(senderID, receiverID, text)
	if err != nil {
		return models.Message{}, err
	}
	s.Push(receiverID, protocol.NewMessage{Message: msg})
	if sender := s.session(senderID); sender != nil {
		s.enqueue(sender, protocol.MessageSent{Message: msg})
	}
	return msg, nil
}

// Disconnect drops the websocket of userID, if any.
func (s *Server) Disconnect(userID int64) {
	if sess := s.session(userID); sess != nil {
		sess.close()
	}
}

// Online reports whether userID has a live channel.
func (s *Server) Online(userID int64) bool {
	return s.session(userID) != nil
}

func (s *Server) session(userID int64) *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions[userID]
}

func (s *Server) addSession(sess *Session) {
	s.mu.Lock()
	old := s.sessions[sess.UserID]
	s.sessions[sess.UserID] = sess
	s.mu.Unlock()
	if old != nil {
		old.close()
	}
}

// removeSession reports false if sess was already replaced by a newer
// connection of the same user.
func (s *Server) removeSession(sess *Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessions[sess.UserID] != sess {
		return false
	}
	delete(s.sessions, sess.UserID)
	return true
}

func (s *Server) broadcastPresence(kind protocol.Kind, userID int64) {
	payload := protocol.Presence{UserID: userID}
	var ev protocol.Event
	if kind == protocol.KindUserOnline {
		ev = protocol.UserOnline{Presence: payload}
	} else {
		ev = protocol.UserOffline{Presence: payload}
	}

	s.mu.RLock()
	targets := make([]*Session, 0, len(s.sessions))
	for id, sess := range s.sessions {
		if id != userID {
			targets = append(targets, sess)
		}
	}
	s.mu.RUnlock()

	for _, sess := range targets {
		s.enqueue(sess, ev)
	}
}
