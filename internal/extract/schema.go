package extract

// paymentSchema is the fixed JSON schema handed to the extraction service as
// the function-calling parameter definition. Field names mirror the wire
// payload parsed by extractedPayload.
const paymentSchema = `{
  "type": "object",
  "properties": {
    "invoice_number": {"type": "string", "description": "Invoice identifier exactly as printed"},
    "amount": {"type": "string", "description": "Final total due, digits and decimal point only"},
    "currency": {"type": "string", "description": "ISO 4217 currency code, e.g. USD"},
    "recipient_name": {"type": "string", "description": "Name of the party to be paid"},
    "invoice_date": {"type": "string", "description": "Invoice date, YYYY-MM-DD"},
    "due_date": {"type": "string", "description": "Payment due date, YYYY-MM-DD"},
    "description": {"type": "string", "description": "Short description of the billed work"},
    "bank_details": {
      "type": "object",
      "properties": {
        "account_holder_name": {"type": "string"},
        "account_number": {"type": "string"},
        "routing_number": {"type": "string"},
        "account_type": {"type": "string", "enum": ["checking", "savings"]},
        "bank_name": {"type": "string"}
      }
    },
    "payee_contact": {
      "type": "object",
      "properties": {
        "contact_type": {"type": "string", "enum": ["individual", "business"]},
        "email": {"type": "string"},
        "phone": {"type": "string"},
        "address": {"type": "string"},
        "tax_id": {"type": "string"}
      }
    }
  },
  "required": ["invoice_number", "amount", "recipient_name"]
}`
