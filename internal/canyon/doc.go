// Package canyon identifies canyon records on descente-canyon.com.
//
// A canyon is addressed by a positive integer ID. The ID can be given directly
// or recovered from any page URL of the site, and every source page used by the
// converter (map, topo description, canonical page) is derived from it by
// substituting the ID into a fixed path template.
package canyon
