// Package billing declares the port to the external accounts-receivable and
// accounts-payable provider.
//
// Key types:
//   - Gateway: customer and vendor provisioning, AR invoices, vendor bills
//   - CreateARInvoiceRequest: customer-facing invoice, optionally itemizing the initial fee
//   - CreateVendorBillRequest: payable bill against a technician acting as vendor
//
// Concrete adapters live in internal/infrastructure/billing. Provisioned ids
// are persisted by the lab and identity repositories so they are reused.
package billing
