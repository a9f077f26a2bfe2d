package scanning

// receiptScanPrompt is the shared prompt used by all LLM providers for scanning receipts
const receiptScanPrompt = `You are reading a payment receipt, invoice or payment-app screenshot for a personal ledger. Carefully read all text in the image and extract:

1. **merchant**: the shop, business or counterparty name, usually the largest text near the top.
2. **amount**: the final amount actually paid or received, as a number (e.g. 42.75). Prefer "实付", "合计", "TOTAL", "Amount Due" over subtotals.
3. **pay_time**: the transaction date and time in the receipt's local time, formatted "YYYY-MM-DD HH:MM:SS". Use 00:00:00 when only a date is printed.
4. **bill_type**: 1 for an expense (money paid out), 2 for income (refunds, transfers received, salary).
5. **category**: a short spending category such as 餐饮, 交通, 购物, 娱乐, 医疗, 住房, 工资.
6. **platform**: the payment app or channel if visible (WeChat, Alipay, a bank name, Cash).
7. **pay_method**, **order_no**: if printed.
8. **items**: purchased line items with name, price and quantity.
9. **confidence**: your confidence in the extraction between 0 and 1.

Return ONLY valid JSON in this exact format:
{
  "merchant": "Store Name",
  "amount": 0.00,
  "pay_time": "YYYY-MM-DD HH:MM:SS",
  "bill_type": 1,
  "category": "餐饮",
  "platform": "",
  "pay_method": "",
  "order_no": "",
  "items": [{"name": "", "price": 0.00, "quantity": 1}],
  "confidence": 0.0
}

Important:
- amount, price and confidence must be numbers, not strings
- If you cannot find a field, use null for that field
- Do not include any text before or after the JSON
- Do not use markdown code blocks`
