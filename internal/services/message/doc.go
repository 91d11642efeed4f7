// Package message encrypts one message for many recipient devices and
// decrypts messages addressed to the local device.
//
// The body is encrypted once with AES-128-GCM. Its key, followed by the
// authentication tag, is then wrapped for every trusted recipient device
// over that device's ratchet session:
//   - Builder collects the wrapped keys, one recipient at a time or in a
//     bounded concurrent fan-out, and finishes into a domain.Envelope.
//   - Decrypt finds the wrapped keys for the local device, unwraps one and
//     opens the body.
//   - Service ties both to the device list cache, trust decisions and the
//     pre-key pool of the local device.
package message
