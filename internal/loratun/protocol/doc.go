/*
Package protocol - the project core code, framing of IP packets on a serial radio byte stream

1. Framer - turn one IP packet into wire units and back (SLIP, fragment with CRC16, length prefix)

2. Decoder - resumable stream decoders, fed arbitrary chunks, resynchronize on corrupt input

3. Bridge - the two pumps between the virtual interface and the serial link

Architecture diagram:
                 Host A                                                       Host B
     +---------+      +------------------+                        +------------------+      +---------+
     |         |----->| outbound pump    |                        | inbound pump     |----->|         |
     |   VNI   |      | Framer.Encode    |=====  serial radio ===>| Decoder.Write    |      |   VNI   |
     |         |      +------------------+                        +------------------+      |         |
     |         |      +------------------+                        +------------------+      |         |
     |         |<-----| inbound pump     |<====  serial radio ====| outbound pump    |<-----|         |
     +---------+      | Decoder.Write    |                        | Framer.Encode    |      +---------+
                      +------------------+                        +------------------+

Each Decoder (and the reassembly table inside the fragment decoder) belongs to
the inbound pump only and is never shared between goroutines.
*/
package protocol
