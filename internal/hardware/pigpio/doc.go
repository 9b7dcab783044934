// Package pigpio drives the lid servo and the HC-SR04 ultrasonic sensor
// through the pigpio daemon (pigpiod) socket interface.
//
// pigpiod listens on TCP port 8888 and accepts fixed 16-byte commands
// (cmd, p1, p2, p3 as little-endian uint32) optionally followed by p3
// bytes of extension data. Every command is answered with 16 bytes whose
// last word is a signed result; negative results are pigpio error codes.
//
// Servo implements lid.Actuator and Ultrasonic implements lid.Sensor.
//
// Thread Safety:
//   - Client serialises commands on its single connection; Servo and
//     Ultrasonic may share one Client.
package pigpio
