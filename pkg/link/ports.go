/*
Copyright © 2024 Jeff Berkowitz (pdxjjb@gmail.com)

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU Affero General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU Affero General Public License for more details.

You should have received a copy of the GNU Affero General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

package link

import (
	"fmt"
	"sort"

	"github.com/pkg/errors"
	"go.bug.st/serial/enumerator"
)

// Port describes one serial device present on the host.
type Port struct {
	Name         string
	IsUSB        bool
	VID, PID     string
	SerialNumber string
	Product      string
}

func (p Port) String() string {
	if !p.IsUSB {
		return p.Name
	}
	s := fmt.Sprintf("%s [USB %s:%s", p.Name, p.VID, p.PID)
	if p.SerialNumber != "" {
		s += " serial " + p.SerialNumber
	}
	if p.Product != "" {
		s += " " + p.Product
	}
	return s + "]"
}

// Ports lists the serial devices on the host, sorted by name.
func Ports() ([]Port, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, errors.Wrap(err, "list serial ports")
	}
	return portsFromDetails(details), nil
}

func portsFromDetails(details []*enumerator.PortDetails) []Port {
	ports := make([]Port, 0, len(details))
	for _, d := range details {
		ports = append(ports, Port{
			Name:         d.Name,
			IsUSB:        d.IsUSB,
			VID:          d.VID,
			PID:          d.PID,
			SerialNumber: d.SerialNumber,
			Product:      d.Product,
		})
	}
	sort.Slice(ports, func(i, j int) bool { return ports[i].Name < ports[j].Name })
	return ports
}

// Exists reports whether name is among the host's serial devices. A listing
// failure reports true so the caller falls through to the open, which
// produces the more useful error.
func Exists(name string) bool {
	ports, err := Ports()
	if err != nil {
		return true
	}
	for _, p := range ports {
		if p.Name == name {
			return true
		}
	}
	return false
}
