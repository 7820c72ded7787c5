package transport

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/campair/campair/pkg/discovery"
)

// MaxFrameSize is the largest plaintext payload a frame may carry.
// Signaling payloads are small; the cap defends against a corrupt or
// hostile length prefix.
const MaxFrameSize = 1 << 20

const lenPrefixSize = 4

// Key derivation parameters. The announcing and scanning directions use
// distinct keys, and each direction's key is bound to a random salt its
// sender contributes at connection setup, so no two connections ever seal
// with the same (key, nonce) pair even under the same pairing code.
const (
	keyLabel        = "campair-v1"
	infoAnnouncing  = "campair announcing->scanning"
	infoScanning    = "campair scanning->announcing"
	directionKeyLen = chacha20poly1305.KeySize

	// sessionSaltSize is the length of the per-connection salt each end
	// writes in the clear before the first frame.
	sessionSaltSize = 16
)

// deriveKey derives one direction key from the pairing code and the sender's
// connection salt.
func deriveKey(pairingCode string, salt []byte, info string) ([]byte, error) {
	hkdfSalt := append([]byte(keyLabel), salt...)
	reader := hkdf.New(sha256.New, []byte(pairingCode), hkdfSalt, []byte(info))

	key := make([]byte, directionKeyLen)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("transport: key derivation: %w", err)
	}
	return key, nil
}

// exchangeSalts trades the per-connection salts in the clear. The salts are
// public; secrecy rests on the pairing code feeding the HKDF. The write runs
// concurrently with the read because both ends send first and an in-memory
// pipe has no buffering to absorb the write.
func exchangeSalts(conn net.Conn) (local, remote []byte, err error) {
	local = make([]byte, sessionSaltSize)
	if _, err := rand.Read(local); err != nil {
		return nil, nil, fmt.Errorf("transport: salt: %w", err)
	}

	writeErr := make(chan error, 1)
	go func() {
		_, err := conn.Write(local)
		writeErr <- err
	}()

	remote = make([]byte, sessionSaltSize)
	if _, err := io.ReadFull(conn, remote); err != nil {
		return nil, nil, fmt.Errorf("transport: salt exchange: %w", err)
	}
	if err := <-writeErr; err != nil {
		return nil, nil, fmt.Errorf("transport: salt exchange: %w", err)
	}
	return local, remote, nil
}

// SecureChannel frames and seals payloads over an ordered reliable net.Conn.
//
// Wire format per frame: 4-byte big-endian ciphertext length, then the
// ChaCha20-Poly1305 ciphertext. Nonces are strictly increasing send counters,
// so a dropped, replayed, or reordered frame fails authentication; the
// underlying stream already guarantees ordering, making such a failure fatal
// for the channel.
type SecureChannel struct {
	conn net.Conn

	sealAEAD cipher.AEAD
	openAEAD cipher.AEAD

	writeMu  sync.Mutex
	writeSeq uint64

	readMu  sync.Mutex
	readSeq uint64
}

// NewSecureChannel wraps conn in an encrypted channel. It exchanges the
// per-connection salts on conn before returning, so both ends must construct
// their channel for the exchange to complete. Both peers must hold the same
// pairing code; role selects which derived key seals each direction.
func NewSecureChannel(conn net.Conn, pairingCode string, role discovery.Role) (*SecureChannel, error) {
	if pairingCode == "" {
		return nil, ErrNoPairingCode
	}
	if !role.IsValid() {
		return nil, ErrInvalidRole
	}

	localSalt, remoteSalt, err := exchangeSalts(conn)
	if err != nil {
		return nil, err
	}

	writeInfo, readInfo := infoAnnouncing, infoScanning
	if role == discovery.RoleScanning {
		writeInfo, readInfo = infoScanning, infoAnnouncing
	}

	writeKey, err := deriveKey(pairingCode, localSalt, writeInfo)
	if err != nil {
		return nil, err
	}
	readKey, err := deriveKey(pairingCode, remoteSalt, readInfo)
	if err != nil {
		return nil, err
	}

	sealAEAD, err := chacha20poly1305.New(writeKey)
	if err != nil {
		return nil, fmt.Errorf("transport: aead: %w", err)
	}
	openAEAD, err := chacha20poly1305.New(readKey)
	if err != nil {
		return nil, fmt.Errorf("transport: aead: %w", err)
	}

	return &SecureChannel{
		conn:     conn,
		sealAEAD: sealAEAD,
		openAEAD: openAEAD,
	}, nil
}

// WriteFrame seals and writes a single payload.
func (c *SecureChannel) WriteFrame(payload []byte) error {
	if len(payload) > MaxFrameSize {
		return ErrFrameTooLarge
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	nonce := frameNonce(c.writeSeq)
	c.writeSeq++

	ciphertext := c.sealAEAD.Seal(nil, nonce, payload, nil)

	buf := make([]byte, lenPrefixSize+len(ciphertext))
	binary.BigEndian.PutUint32(buf, uint32(len(ciphertext)))
	copy(buf[lenPrefixSize:], ciphertext)

	if _, err := c.conn.Write(buf); err != nil {
		return fmt.Errorf("transport: write frame: %w", err)
	}
	return nil
}

// ReadFrame reads and opens a single payload.
func (c *SecureChannel) ReadFrame() ([]byte, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	var header [lenPrefixSize]byte
	if _, err := io.ReadFull(c.conn, header[:]); err != nil {
		return nil, fmt.Errorf("transport: read frame header: %w", err)
	}

	length := binary.BigEndian.Uint32(header[:])
	if length == 0 || length > MaxFrameSize+uint32(c.openAEAD.Overhead()) {
		return nil, ErrFrameTooLarge
	}

	ciphertext := make([]byte, length)
	if _, err := io.ReadFull(c.conn, ciphertext); err != nil {
		return nil, fmt.Errorf("transport: read frame body: %w", err)
	}

	nonce := frameNonce(c.readSeq)
	c.readSeq++

	payload, err := c.openAEAD.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrDecrypt
	}
	return payload, nil
}

// Close closes the underlying connection.
func (c *SecureChannel) Close() error {
	return c.conn.Close()
}

// RemoteAddr returns the remote address of the underlying connection.
func (c *SecureChannel) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// frameNonce encodes a send counter as a ChaCha20-Poly1305 nonce.
func frameNonce(seq uint64) []byte {
	nonce := make([]byte, chacha20poly1305.NonceSize)
	binary.BigEndian.PutUint64(nonce[4:], seq)
	return nonce
}
